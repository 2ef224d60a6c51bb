package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/blturner/stardate/internal/blobstore"
	"github.com/blturner/stardate/internal/post"
	"github.com/blturner/stardate/internal/ui"
)

var blogCmd = &cobra.Command{
	Use:   "blog",
	Short: "Manage blogs",
}

var blogAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a blog and its backend document",
	Long: `Add registers a blog so import, push and watch know about it. With no
flags an interactive form prompts for the details.

Example usage:
  stardate blog add --name "My Log" --file ~/blog/posts.md
  stardate blog add --name notes --backend s3 --file notes/ --owner alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		backend, _ := cmd.Flags().GetString("backend")
		file, _ := cmd.Flags().GetString("file")
		owner, _ := cmd.Flags().GetString("owner")
		timezone, _ := cmd.Flags().GetString("timezone")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		if backend == "" {
			backend = cfg.DefaultBackend
		}
		if timezone == "" {
			timezone = cfg.DefaultTimezone
		}

		// no identifying flags: fall back to the interactive form
		if name == "" && file == "" {
			first := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Blog name").
						Value(&name),
					huh.NewSelect[string]().
						Title("Backend").
						Options(
							huh.NewOption("Local file", blobstore.KindLocal),
							huh.NewOption("S3 bucket", blobstore.KindS3),
							huh.NewOption("GitHub gist", blobstore.KindGist),
						).
						Value(&backend),
				),
			)
			if err := first.Run(); err != nil {
				return err
			}

			second := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Document path").
						Description("A file for a single document, a directory for one file per post").
						Suggestions(backendPaths(cmd.Context(), backend)).
						Value(&file),
					huh.NewInput().
						Title("Owner").
						Value(&owner),
					huh.NewInput().
						Title("Timezone").
						Placeholder(timezone).
						Value(&timezone),
				),
			)
			if err := second.Run(); err != nil {
				return err
			}
		}

		blog := &post.Blog{
			Name:        name,
			Slug:        post.Slugify(name),
			Owner:       owner,
			Backend:     backend,
			BackendFile: file,
			Timezone:    timezone,
			SyncEnabled: !noSync,
		}
		if err := blog.Validate(); err != nil {
			return err
		}

		db, _, err := openRuntime()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.CreateBlog(blog); err != nil {
			return err
		}
		fmt.Printf("%s added blog %s (%s: %s)\n",
			ui.RenderPass("✓"), ui.RenderAccent(blog.Slug), blog.Backend, blog.BackendFile)
		return nil
	},
}

var blogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered blogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openRuntime()
		if err != nil {
			return err
		}
		defer db.Close()

		blogs, err := db.ListBlogs(nil)
		if err != nil {
			return err
		}
		if len(blogs) == 0 {
			fmt.Println(ui.RenderDim("no blogs registered; run `stardate blog add`"))
			return nil
		}
		for _, b := range blogs {
			state := ui.RenderPass("sync on")
			if !b.SyncEnabled {
				state = ui.RenderDim("sync off")
			}
			fmt.Printf("%s  %s  %s:%s  [%s]\n",
				ui.RenderAccent(b.Slug), b.Name, b.Backend, b.BackendFile, state)
		}
		return nil
	},
}

// backendPaths lists documents already present in the backend to suggest as
// the blog's path. Listing is best-effort; remote errors just mean no
// suggestions.
func backendPaths(ctx context.Context, kind string) []string {
	if kind == blobstore.KindLocal {
		return nil
	}
	bs, err := blobstore.New(kind, cfg.BlobOptions())
	if err != nil {
		return nil
	}
	names, err := bs.List(ctx, "")
	if err != nil {
		return nil
	}
	return names
}

func init() {
	blogAddCmd.Flags().String("name", "", "blog name")
	blogAddCmd.Flags().String("backend", "", "backend kind: local, s3 or gist")
	blogAddCmd.Flags().String("file", "", "backend document path (file or directory)")
	blogAddCmd.Flags().String("owner", "", "owning user")
	blogAddCmd.Flags().String("timezone", "", "default timezone for naive publish dates")
	blogAddCmd.Flags().Bool("no-sync", false, "register without enabling sync")
	blogCmd.AddCommand(blogAddCmd)
	blogCmd.AddCommand(blogListCmd)
	rootCmd.AddCommand(blogCmd)
}
