package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blturner/stardate/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Pull remote documents into the database",
	Long: `Import reads each blog's backend document(s) and upserts the posts it
finds into the database. Blogs whose backend has not changed since the last
sync are skipped unless --force is given.

Example usage:
  stardate import                 # import every sync-enabled blog
  stardate import --user alice    # only blogs owned by alice
  stardate import --force         # ignore the last-sync check`,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, _ := cmd.Flags().GetStringArray("user")
		force, _ := cmd.Flags().GetBool("force")

		db, engine, err := openRuntime()
		if err != nil {
			return err
		}
		defer db.Close()

		blogs, err := db.ListBlogs(users)
		if err != nil {
			return err
		}
		if len(blogs) == 0 {
			fmt.Println(ui.RenderDim("no blogs to import"))
			return nil
		}

		for i := range blogs {
			blog := &blogs[i]
			res, err := engine.Pull(cmd.Context(), blog, force)
			if err != nil {
				fmt.Printf("%s %s: %v\n", ui.RenderFail("✗"), blog.Slug, err)
				continue
			}
			if res.Skipped {
				fmt.Printf("%s %s: up to date\n", ui.RenderDim("-"), blog.Slug)
				continue
			}
			if res.Saved == 0 {
				// backend changed but nothing usable came out of it
				fmt.Printf("%s %s: no posts imported\n", ui.RenderWarn("!"), blog.Slug)
				continue
			}
			fmt.Printf("%s %s: %d saved (%d new, %d updated)\n",
				ui.RenderPass("✓"), blog.Slug, res.Saved, res.Created, res.Updated)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringArrayP("user", "u", nil, "only import blogs owned by this user (repeatable)")
	importCmd.Flags().BoolP("force", "f", false, "import even when the backend looks unchanged")
	rootCmd.AddCommand(importCmd)
}
