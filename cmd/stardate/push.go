package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blturner/stardate/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Write database posts back to the backend documents",
	Long: `Push merges every post in the database into its blog's backend
document(s) and writes the result. Local fields win over the remote copy;
fields only present remotely are preserved.

Example usage:
  stardate push                # push every sync-enabled blog
  stardate push --blog mylog   # push a single blog`,
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, _ := cmd.Flags().GetString("blog")

		db, engine, err := openRuntime()
		if err != nil {
			return err
		}
		defer db.Close()

		var blogs []string
		if slug != "" {
			blogs = []string{slug}
		} else {
			all, err := db.ListBlogs(nil)
			if err != nil {
				return err
			}
			for _, b := range all {
				blogs = append(blogs, b.Slug)
			}
		}

		for _, s := range blogs {
			blog, err := db.GetBlog(s)
			if err != nil {
				return fmt.Errorf("blog %q: %w", s, err)
			}
			res, err := engine.PushAll(cmd.Context(), blog)
			if err != nil {
				fmt.Printf("%s %s: %v\n", ui.RenderFail("✗"), blog.Slug, err)
				continue
			}
			fmt.Printf("%s %s: %d post(s) in %d document(s)\n",
				ui.RenderPass("✓"), blog.Slug, res.Posts, res.Written)
		}
		return nil
	},
}

func init() {
	pushCmd.Flags().StringP("blog", "b", "", "push a single blog by slug")
	rootCmd.AddCommand(pushCmd)
}
