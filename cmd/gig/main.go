package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gigline/internal/config"
	"gigline/internal/db"
	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/engine/gateway"
	"gigline/internal/migrate"
	"gigline/internal/repo"
	"gigline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gig",
	Short: "Gigline CLI",
	Long: `Gigline is a freelance job marketplace backend.
Core concepts:
- Workspace: your .gigline directory with the database; gigline.yml holds config.
- Jobs: postings with a bidding deadline; open -> bidding -> closed/cancelled.
- Bids: one per freelancer per job; accepting one allocates the job and rejects the rest.
- Progress: the allocated freelancer advances the project level by level, never backwards.
- Milestones & payments: each progress level maps to a percentage of the project total.
- Messages: employer and allocated freelancer talk per job once allocation happens.
- Event log: diary of changes, view with 'gig log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("GIGLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", "employer", "actor role (employer, freelancer, admin)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(bidCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func cliActor() engine.Actor {
	return engine.Actor{
		ID:   viper.GetString("actor-id"),
		Role: viper.GetString("role"),
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default gigline.yml and create the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Initialized workspace: %s and %s\n", path, db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage job postings",
		Long:  "Jobs are postings with a bidding window. Freelancers bid until the deadline; accepting a bid allocates the job and closes it.",
	}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobGetCmd())
	job.AddCommand(jobUpdateCmd())
	job.AddCommand(jobCancelCmd())
	job.AddCommand(jobDeleteCmd())
	return job
}

func jobCreateCmd() *cobra.Command {
	var opts engine.JobCreateOptions
	var budget int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("budget") {
				opts.Budget = &budget
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.CreateJob(ctx, cliActor(), opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(j)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Company, "company", "", "company name")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().Int64Var(&budget, "budget", 0, "project budget")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "bidding deadline (RFC3339)")
	cmd.Flags().IntVar(&opts.DurationHours, "duration-hours", 0, "bidding window in hours (default from config)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func jobListCmd() *cobra.Command {
	var opts engine.JobListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.ListJobs(ctx, cliActor(), opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Company", "Status", "Deadline", "Allocated To", "Progress"})
				for _, j := range jobs {
					allocated := ""
					if j.AllocatedTo != nil {
						allocated = *j.AllocatedTo
					}
					tw.AppendRow(table.Row{j.ID, j.Title, j.Company, j.Status, j.BiddingDeadline, allocated, j.ProjectStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.PostedBy, "posted-by", "", "posting employer filter")
	cmd.Flags().StringVar(&opts.AllocatedTo, "allocated-to", "", "allocated freelancer filter")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max rows")
	return cmd
}

func jobGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.GetJob(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrIndent(j)
			})
		},
	}
	return cmd
}

func jobUpdateCmd() *cobra.Command {
	var title, company, location, description, deadline string
	var budget int64
	var durationHours int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update job posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.JobUpdateOptions{ID: args[0]}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("company") {
				opts.Company = &company
			}
			if cmd.Flags().Changed("location") {
				opts.Location = &location
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("budget") {
				opts.Budget = &budget
			}
			if cmd.Flags().Changed("deadline") {
				opts.Deadline = &deadline
			}
			if cmd.Flags().Changed("duration-hours") {
				opts.DurationHours = &durationHours
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.UpdateJob(ctx, cliActor(), opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Int64Var(&budget, "budget", 0, "project budget")
	cmd.Flags().StringVar(&deadline, "deadline", "", "bidding deadline (RFC3339)")
	cmd.Flags().IntVar(&durationHours, "duration-hours", 0, "bidding window in hours")
	return cmd
}

func jobCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel job without allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.UpdateJob(ctx, cliActor(), engine.JobUpdateOptions{ID: args[0], Cancel: true})
				if err != nil {
					return err
				}
				return printJSONOrIndent(j)
			})
		},
	}
	return cmd
}

func jobDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteJob(ctx, cliActor(), args[0])
			})
		},
	}
	return cmd
}

func bidCmd() *cobra.Command {
	bid := &cobra.Command{
		Use:   "bid",
		Short: "Manage bids",
		Long:  "Bids flow pending -> accepted/rejected. Accepting one bid allocates the job, closes it, and rejects all other pending bids in the same transaction.",
	}
	bid.AddCommand(bidPlaceCmd())
	bid.AddCommand(bidListCmd())
	bid.AddCommand(bidAcceptCmd())
	bid.AddCommand(bidRejectCmd())
	return bid
}

func bidPlaceCmd() *cobra.Command {
	var opts engine.BidOptions
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a bid on a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.PlaceBid(ctx, cliActor(), opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(b)
			})
		},
	}
	cmd.Flags().StringVar(&opts.JobID, "job", "", "job id")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "bid amount")
	cmd.Flags().StringVar(&opts.CoverLetter, "cover-letter", "", "cover letter")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func bidListCmd() *cobra.Command {
	var jobID, freelancerID, recruiterID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bids for a job, freelancer, or recruiter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					bids []domain.Bid
					err  error
				)
				switch {
				case jobID != "":
					bids, err = e.ListBidsForJob(ctx, cliActor(), jobID)
				case freelancerID != "":
					bids, err = e.ListBidsForFreelancer(ctx, cliActor(), freelancerID)
				case recruiterID != "":
					bids, err = e.ListBidsForRecruiter(ctx, cliActor(), recruiterID)
				default:
					return fmt.Errorf("one of --job, --freelancer, --recruiter is required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(bids)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Freelancer", "Amount", "Status"})
				for _, b := range bids {
					tw.AppendRow(table.Row{b.ID, b.JobID, b.FreelancerID, b.Amount, b.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&freelancerID, "freelancer", "", "freelancer id")
	cmd.Flags().StringVar(&recruiterID, "recruiter", "", "recruiter id")
	return cmd
}

func bidAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <bid-id>",
		Short: "Accept a bid and allocate the job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, b, err := e.AcceptBid(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(map[string]any{"job": j, "bid": b})
			})
		},
	}
	return cmd
}

func bidRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <bid-id>",
		Short: "Reject a pending bid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.RejectBid(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(b)
			})
		},
	}
	return cmd
}

func progressCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "progress <job-id>",
		Short: "Advance project progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.UpdateProgress(ctx, cliActor(), args[0], level)
				if err != nil {
					return err
				}
				return printJSONOrIndent(j)
			})
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "new progress level")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func milestoneCmd() *cobra.Command {
	ms := &cobra.Command{
		Use:   "milestone",
		Short: "Manage milestones",
		Long:  "Milestones map progress levels to percentages of the project total. Initialize them eagerly or let payment orders create them on demand.",
	}
	ms.AddCommand(milestoneInitCmd())
	ms.AddCommand(milestoneListCmd())
	ms.AddCommand(milestonePayableCmd())
	return ms
}

func milestoneInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <job-id>",
		Short: "Initialize milestone schedule for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ms, err := e.InitializeMilestones(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(ms)
			})
		},
	}
	return cmd
}

func milestoneListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <job-id>",
		Short: "List milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ms, err := e.ListMilestones(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ms)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Level", "Status", "Pct", "Amount", "Payment"})
				for _, m := range ms {
					tw.AppendRow(table.Row{m.Level, m.Status, m.Percentage, m.Amount, m.PaymentStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func milestonePayableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payable <job-id>",
		Short: "Show amount due at current progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.PayableAmount(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	return cmd
}

func paymentCmd() *cobra.Command {
	pay := &cobra.Command{
		Use:   "payment",
		Short: "Manage milestone payments",
	}
	pay.AddCommand(paymentCreateCmd())
	pay.AddCommand(paymentConfirmCmd())
	pay.AddCommand(paymentListCmd())
	return pay
}

func paymentCreateCmd() *cobra.Command {
	var jobID string
	var level int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a payment order for a milestone level",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePaymentOrder(ctx, cliActor(), jobID, level)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().IntVar(&level, "level", 0, "milestone level")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func paymentConfirmCmd() *cobra.Command {
	var jobID, orderID string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a payment order with the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ConfirmPayment(ctx, cliActor(), jobID, orderID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&orderID, "order", "", "gateway order id")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func paymentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <job-id>",
		Short: "List project payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ps, err := e.ListProjectPayments(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(ps)
			})
		},
	}
	return cmd
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{
		Use:   "message",
		Short: "Job messaging",
	}
	msg.AddCommand(messageSendCmd())
	msg.AddCommand(messageListCmd())
	msg.AddCommand(messageInboxCmd())
	return msg
}

func messageSendCmd() *cobra.Command {
	var jobID, body string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message on an allocated job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SendMessage(ctx, cliActor(), jobID, body)
				if err != nil {
					return err
				}
				return printJSONOrIndent(m)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&body, "body", "", "message body")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func messageListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <job-id>",
		Short: "Show job message history (marks your messages read)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				msgs, err := e.JobMessages(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(msgs)
			})
		},
	}
	return cmd
}

func messageInboxCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Conversation summaries per allocated job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				convs, err := e.Conversations(ctx, cliActor(), userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(convs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Job", "Title", "Counterpart", "Unread", "Progress"})
				for _, c := range convs {
					tw.AppendRow(table.Row{c.JobID, c.JobTitle, c.CounterpartID, c.UnreadCount, c.ProjectStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to actor)")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case domain.RoleEmployer, domain.RoleFreelancer, domain.RoleAdmin:
			default:
				return fmt.Errorf("--role must be employer, freelancer, or admin")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "gig_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Role:      role,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The secret is shown once and stored only as a hash.
				return printJSONOrIndent(map[string]any{"id": key.ID, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&role, "key-role", "", "role bound to the key")
	_ = cmd.MarkFlagRequired("key-role")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(keys)
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: jobs, bids, allocations, progress, payments, and messages.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, jobID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, jobID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrIndent(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&jobID, "job", "", "job id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			secret := os.Getenv("GIGLINE_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("GIGLINE_JWT_SECRET or auth.jwt_secret is required for bearer auth")
			}
			e := engine.New(conn, cfg, gateway.Mock{Currency: cfg.Payments.Currency})
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
					DevLogin:               cfg.Auth.DevLogin,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Gigline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, gateway.Mock{Currency: cfg.Payments.Currency})
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrIndent(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
