package main

import (
	"context"
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/serializer"
	"github.com/wahlandcase/appgit/internal/service"
	"github.com/wahlandcase/appgit/internal/ui"
)

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// record returns the application of branch, or the application itself when
// branch is empty
func record(ctx context.Context, id, branch string) (*models.Application, error) {
	if branch == "" {
		return app.store.GetApplication(ctx, id)
	}
	return app.store.FindBranchApplication(ctx, id, branch)
}

func defaultBranch(ctx context.Context, id string) string {
	meta, err := app.svc.GetMetadata(ctx, id)
	if err != nil {
		return app.cfg.Git.DefaultBranch
	}
	return meta.DefaultBranchName
}

func appCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage application records",
	}

	var fromDir string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an application, optionally from an exported directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := models.ApplicationContent{
				Pages: []models.Page{{ID: uuid.NewString(), Name: "Home", Slug: "home", IsDefault: true}},
			}
			name := args[0]
			if fromDir != "" {
				tree, err := serializer.ReadTree(osfs.New(fromDir))
				if err != nil {
					return err
				}
				if content, _, err = serializer.Import(tree, nil); err != nil {
					return err
				}
			}
			a := models.NewApplication(uuid.NewString(), name, content)
			if err := app.store.CreateApplication(cmd.Context(), &a); err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(&a))
			return nil
		},
	}
	create.Flags().StringVar(&fromDir, "from", "", "Directory holding an exported application")

	var branch string
	show := &cobra.Command{
		Use:   "show <app-id>",
		Short: "Show an application or one of its branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := record(cmd.Context(), args[0], branch)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
	show.Flags().StringVarP(&branch, "branch", "b", "", "Branch to show")

	export := &cobra.Command{
		Use:   "export <app-id> <dir>",
		Short: "Write the application's files to a directory for editing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := record(cmd.Context(), args[0], branch)
			if err != nil {
				return err
			}
			tree, err := serializer.Export(a)
			if err != nil {
				return err
			}
			if err := tree.WriteTo(osfs.New(args[1])); err != nil {
				return err
			}
			printf(cmd, "Exported %d files to %s\n", len(tree), args[1])
			return nil
		},
	}
	export.Flags().StringVarP(&branch, "branch", "b", "", "Branch to export")

	importCmd := &cobra.Command{
		Use:   "import <app-id> <dir>",
		Short: "Replace the application's content with an edited directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := record(cmd.Context(), args[0], branch)
			if err != nil {
				return err
			}
			tree, err := serializer.ReadTree(osfs.New(args[1]))
			if err != nil {
				return err
			}
			content, name, err := serializer.Import(tree, a)
			if err != nil {
				return err
			}
			a.Name = name
			a.Content = content
			if err := app.store.UpdateApplication(cmd.Context(), a); err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
	importCmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to update")

	cmd.AddCommand(create, show, export, importCmd)
	return cmd
}

func initCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "init <app-id>",
		Short: "Start versioning an application without a remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.svc.Initialize(cmd.Context(), app.user, args[0], branch)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Default branch name")
	return cmd
}

func connectCmd() *cobra.Command {
	var req service.ConnectRequest
	var origin, authorName, authorEmail string
	cmd := &cobra.Command{
		Use:   "connect <app-id> <remote-url>",
		Short: "Connect an application to an empty remote repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.RemoteURL = args[1]
			if authorName != "" || authorEmail != "" {
				p := models.NewGitProfile(authorName, authorEmail, false)
				req.Profile = &p
			}
			a, err := app.svc.Connect(cmd.Context(), app.user, args[0], req, origin)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.GitAuthRef, "auth", "", "Credentials section to authenticate with")
	cmd.Flags().BoolVar(&req.IsRepoPrivate, "private", false, "Mark the repository as private")
	cmd.Flags().StringVar(&origin, "origin", "", "URL where the application is edited, noted in the README")
	cmd.Flags().StringVar(&authorName, "author-name", "", "Author name for this application")
	cmd.Flags().StringVar(&authorEmail, "author-email", "", "Author email for this application")
	return cmd
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <app-id>",
		Short: "Detach the remote repository, keeping local history and branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.svc.Disconnect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
}

func commitCmd() *cobra.Command {
	var branch string
	var req service.CommitRequest
	cmd := &cobra.Command{
		Use:   "commit <app-id>",
		Short: "Commit the current content of a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.svc.Commit(cmd.Context(), app.user, args[0], branch, req)
			if res.Changed || err == nil {
				printf(cmd, "%s\n", res)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to commit (default branch when empty)")
	cmd.Flags().StringVarP(&req.Message, "message", "m", "", "Commit message")
	cmd.Flags().BoolVar(&req.DoPush, "push", false, "Push after committing")
	return cmd
}

func logCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "log <app-id>",
		Short: "Show commit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := app.svc.CommitHistory(cmd.Context(), args[0], branch)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Log(logs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to show")
	return cmd
}

func pushCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "push <app-id>",
		Short: "Push committed history to the remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := app.svc.Push(cmd.Context(), args[0], branch)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to push")
	return cmd
}

func pullCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "pull <app-id>",
		Short: "Fetch and integrate remote changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.svc.Pull(cmd.Context(), app.user, args[0], branch)
			if err != nil {
				if res.Status == models.PullConflicted {
					fmt.Fprintln(cmd.ErrOrStderr(), "Resolve by editing and committing the branch, or discard the merge.")
				}
				return err
			}
			name := branch
			if name == "" {
				name = defaultBranch(cmd.Context(), args[0])
			}
			printf(cmd, "%s", ui.Pull(res, name))
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to pull")
	return cmd
}

func statusCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "status <app-id>",
		Short: "Show uncommitted changes and remote divergence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := app.svc.Status(cmd.Context(), args[0], branch)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Status(status, defaultBranch(cmd.Context(), args[0])))
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to inspect")
	return cmd
}

func discardCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "discard <app-id>",
		Short: "Drop uncommitted changes and any pending merge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.svc.Discard(cmd.Context(), args[0], branch)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to reset")
	return cmd
}

func branchCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "branch <app-id>",
		Short: "List branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branches, err := app.svc.ListBranches(cmd.Context(), args[0], refresh)
			if err != nil {
				return err
			}
			current, _ := app.svc.CurrentBranch(cmd.Context(), args[0])
			printf(cmd, "%s", ui.Branches(branches, current))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch from the remote and prune deleted branches")

	var from string
	create := &cobra.Command{
		Use:   "create <app-id> <branch>",
		Short: "Create a branch from the last commit of another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.svc.CreateBranch(cmd.Context(), args[0], from, args[1])
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
	create.Flags().StringVar(&from, "from", "", "Source branch (default branch when empty)")

	cmd.AddCommand(create)
	return cmd
}

func checkoutCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "checkout <app-id> <branch>",
		Short: "Switch to a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.svc.CheckoutBranch(cmd.Context(), args[0], args[1], remote)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Application(a))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Check out a branch that only exists on the remote")
	return cmd
}

func mergeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "merge <app-id> <source> <destination>",
		Short: "Merge one branch into another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, source, dest := args[0], args[1], args[2]
			if dryRun {
				status, err := app.svc.MergeStatus(cmd.Context(), id, source, dest)
				if err != nil {
					return err
				}
				printf(cmd, "%s", ui.MergeStatus(status, source, dest, defaultBranch(cmd.Context(), id)))
				return nil
			}
			res, err := app.svc.Merge(cmd.Context(), app.user, id, source, dest)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Merge(res))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report whether the merge would succeed")
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage git author profiles",
	}

	var appID string
	var p models.GitProfile
	set := &cobra.Command{
		Use:   "set",
		Short: "Save the global profile, or one application's with --app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := app.svc.SaveProfile(cmd.Context(), app.user, p, appID)
			if err != nil {
				return err
			}
			printf(cmd, "%s", ui.Profiles(profiles))
			return nil
		},
	}
	set.Flags().StringVar(&appID, "app", "", "Application the profile applies to")
	set.Flags().StringVar(&p.AuthorName, "author-name", "", "Author name")
	set.Flags().StringVar(&p.AuthorEmail, "author-email", "", "Author email")
	set.Flags().BoolVar(&p.UseGlobalProfile, "use-global", false, "Use the global profile for this application")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the profile used for commits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := app.svc.GetProfile(cmd.Context(), app.user, appID)
			if err != nil {
				return err
			}
			key := models.DefaultProfileKey
			if appID != "" {
				key = appID
			}
			printf(cmd, "%s", ui.Profiles(map[string]models.GitProfile{key: resolvedProfile(profile)}))
			return nil
		},
	}
	show.Flags().StringVar(&appID, "app", "", "Application to resolve the profile for")

	cmd.AddCommand(set, show)
	return cmd
}

// resolvedProfile shows the identity actually used rather than the global marker
func resolvedProfile(p models.GitProfile) models.GitProfile {
	p.UseGlobalProfile = false
	return p
}
