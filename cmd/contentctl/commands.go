package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/spf13/cobra"

	"contentengine/internal/adapter/repo"
	"contentengine/internal/bootstrap"
	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/infra/credentials"
	"contentengine/internal/pipeline"
	"contentengine/pkg/zip"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := infra.NewDBPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := repo.Migrate(cmd.Context(), infra.NewSQLRunner(pool, logger)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	var (
		params  pipeline.Params
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "generate <subject>",
		Short: "Generate one article now and print the run result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Subject = args[0]
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				res, err := e.Pipeline.GenerateOnce(cmd.Context(), params, publish, 0)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish when no guardrail trips")
	cmd.Flags().StringVar(&params.PrimaryKeyword, "primary", "", "Primary keyword (defaults to settings)")
	cmd.Flags().StringSliceVar(&params.SecondaryKeywords, "secondary", nil, "Secondary keywords (defaults to settings)")
	cmd.Flags().StringVar(&params.Audience, "audience", "", "Target audience")
	cmd.Flags().StringVar(&params.Intent, "intent", "", "Search intent")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Re-run a stored job as a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				res, err := e.Pipeline.RunJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func approveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <job-id>",
		Short: "Publish the post a job produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				res, err := e.Pipeline.ApproveJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %d: %s (post %d)\n", res.JobID, res.Message, res.PostID)
				return nil
			})
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect generation jobs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				jobs, err := e.Pipeline.RecentJobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return writeJobTable(cmd.OutOrStdout(), jobs)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs")

	var markdown bool
	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its score, image diagnostics and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				job, err := e.Pipeline.Job(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !markdown {
					return printJSON(cmd.OutOrStdout(), job)
				}
				if job.PostID == nil {
					return errors.New("job has no post yet")
				}
				post, err := e.Posts.Get(cmd.Context(), *job.PostID)
				if err != nil {
					return err
				}
				out, err := renderMarkdown(post)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&markdown, "markdown", false, "Print the generated post as Markdown")

	var out string
	export := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Write a zip with the job record and its post as HTML and Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				job, err := e.Pipeline.Job(cmd.Context(), id)
				if err != nil {
					return err
				}
				var post *domain.Post
				if job.PostID != nil {
					if post, err = e.Posts.Get(cmd.Context(), *job.PostID); err != nil {
						return err
					}
				}
				entries, err := exportEntries(job, post)
				if err != nil {
					return err
				}
				data, err := zip.Archive(entries)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = fmt.Sprintf("job-%d.zip", job.ID)
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "Output file (default job-<id>.zip)")

	cmd.AddCommand(list, show, export)
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				p := e.Settings.Provider
				for _, m := range e.Models.Models(cmd.Context(), p.APIBase, p.APIKey) {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			})
		},
	}
}

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage stored provider API keys",
	}
	var key string
	set := &cobra.Command{
		Use:   "set <openai|anthropic>",
		Short: "Store an API key (falls back to PROVIDER_API_KEY or ANTHROPIC_API_KEY)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := strings.ToLower(strings.TrimSpace(args[0]))
			token := strings.TrimSpace(key)
			if token == "" {
				token = keyFromEnv(provider)
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := infra.NewDBPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
			if err := store.SetToken(cmd.Context(), provider, token); err != nil {
				return fmt.Errorf("store %s api key: %w", provider, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s API key stored\n", provider)
			return nil
		},
	}
	set.Flags().StringVar(&key, "key", "", "API key to store")
	cmd.AddCommand(set)
	return cmd
}

func cleanupCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every job row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to delete jobs without --confirm")
			}
			return withEngine(cmd, func(e *bootstrap.Engine) error {
				n, err := e.Jobs.Purge(cmd.Context())
				if err != nil {
					return err
				}
				e.Logger.Warn().Int64("deleted", n).Msg("contentctl: jobs purged")
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d jobs\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm deletion of all jobs")
	return cmd
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func keyFromEnv(provider string) string {
	switch provider {
	case credentials.ProviderOpenAI:
		return strings.TrimSpace(os.Getenv("PROVIDER_API_KEY"))
	case credentials.ProviderAnthropic:
		return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	return ""
}

func renderMarkdown(post *domain.Post) (string, error) {
	body, err := md.NewConverter("", true, nil).ConvertString(post.Content)
	if err != nil {
		return "", fmt.Errorf("convert post %d: %w", post.ID, err)
	}
	return "# " + post.Title + "\n\n" + body, nil
}

func exportEntries(job *domain.Job, post *domain.Post) ([]zip.Entry, error) {
	raw, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, err
	}
	entries := []zip.Entry{{Name: "job.json", Data: raw, Modified: time.Now()}}
	if post == nil {
		return entries, nil
	}
	markdown, err := renderMarkdown(post)
	if err != nil {
		return nil, err
	}
	return append(entries,
		zip.Entry{Name: "post.html", Data: []byte(post.Content), Modified: post.UpdatedAt},
		zip.Entry{Name: "post.md", Data: []byte(markdown), Modified: post.UpdatedAt},
	), nil
}

func writeJobTable(w io.Writer, jobs []domain.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPOST\tSCORE\tSCHEDULED\tSUBJECT")
	for _, j := range jobs {
		post, score, scheduled := "-", "-", "-"
		if j.PostID != nil {
			post = strconv.FormatInt(*j.PostID, 10)
		}
		if j.Score != nil {
			score = strconv.Itoa(j.Score.Total)
		}
		if j.ScheduledAt != nil {
			scheduled = j.ScheduledAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", j.ID, j.Status, post, score, scheduled, j.Subject)
	}
	return tw.Flush()
}
