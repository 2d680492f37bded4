package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/events"
	"syncademic/internal/google"
	"syncademic/internal/models"
	"syncademic/internal/profile"
	"syncademic/internal/syncer"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "syncademic",
		Usage: "Synchronize ICS timetables into Google or CalDAV calendars.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", EnvVars: []string{"CONFIG_FILE"}, Value: "syncademic.yaml", Usage: "Path to the YAML config file."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Keep destination changes in memory instead of writing them."},
		},
		Commands: []*cli.Command{
			serveCommand(),
			scheduledSyncCommand(),
			authCommand(),
			isAuthorizedCommand(),
			calendarsCommand(),
			validateICSCommand(),
			createCommand(),
			syncCommand(),
			deleteCommand(),
			listCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		kind := apperr.KindOf(err)
		slog.Error("Application failed", "error", err, "kind", kind, "status", kind.HTTPStatus())
		os.Exit(1)
	}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{Name: "user", Required: true, Usage: "User id the command acts for."}
}

func accountFlag() cli.Flag {
	return &cli.StringFlag{Name: "account", Required: true, Usage: "Provider account id (the account email)."}
}

func profileFlag() cli.Flag {
	return &cli.StringFlag{Name: "profile", Required: true, Usage: "Sync profile id."}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run scheduled syncs on the configured cron schedule until interrupted.",
		Action: withApp(func(c *cli.Context, a *app) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := a.newScheduler()
			if err := s.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			a.logger.Info("Shutting down.")
			s.Stop()
			return nil
		}),
	}
}

func scheduledSyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "scheduled-sync",
		Usage: "Run one scheduled sync of every active profile and exit.",
		Action: withApp(func(c *cli.Context, a *app) error {
			sum, err := a.newScheduler().RunOnce(c.Context)
			if err != nil {
				return err
			}
			fmt.Printf("total=%d synced=%d failed=%d running=%d not_attempted=%d\n",
				sum.Total, sum.Synced, sum.Failed, sum.Running, sum.NotAttempted)
			return nil
		}),
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize a Google account and store its tokens.",
		Flags: []cli.Flag{
			userFlag(),
			accountFlag(),
			&cli.StringFlag{Name: "code", Usage: "Authorization code. Prompted for when empty."},
			&cli.StringFlag{Name: "redirect-uri", Usage: "Redirect URI used to obtain the code."},
		},
		Action: withApp(func(c *cli.Context, a *app) error {
			userID, acc := c.String("user"), c.String("account")
			redirectURI := c.String("redirect-uri")
			if redirectURI == "" {
				redirectURI = a.oauth.RedirectURL
			}

			code := c.String("code")
			if code == "" {
				cfg := *a.oauth
				cfg.RedirectURL = redirectURI
				authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
				fmt.Printf("Go to the following link in your browser then type the "+
					"authorization code: \n%v\n", authURL)

				fmt.Print("Enter Authorization Code: ")
				reader := bufio.NewReader(os.Stdin)
				code, _ = reader.ReadString('\n')
				code = strings.TrimSpace(code)
			}

			if err := google.Authorize(c.Context, a.oauth, a.tokens, a.cfg.AllowedRedirectURIs, userID, acc, code, redirectURI); err != nil {
				return err
			}
			if _, err := a.syncer.EnsureUser(c.Context, userID, acc); err != nil {
				return err
			}
			a.logger.Info("Successfully authorized account.", "userID", userID, "account", acc)
			return nil
		}),
	}
}

func isAuthorizedCommand() *cli.Command {
	return &cli.Command{
		Name:  "is-authorized",
		Usage: "Report whether the account has usable credentials.",
		Flags: []cli.Flag{userFlag(), accountFlag()},
		Action: withApp(func(c *cli.Context, a *app) error {
			ok, err := a.provider.IsAuthorized(c.Context, c.String("user"), c.String("account"))
			if err != nil {
				return err
			}
			fmt.Println(ok)
			return nil
		}),
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the calendars of an authorized account.",
		Flags: []cli.Flag{
			userFlag(),
			accountFlag(),
			&cli.BoolFlag{Name: "check", Usage: "Verify that each calendar is reachable."},
		},
		Action: withApp(func(c *cli.Context, a *app) error {
			userID, acc := c.String("user"), c.String("account")
			cals, err := a.provider.ListCalendars(c.Context, userID, acc)
			if err != nil {
				return err
			}
			for _, cal := range cals {
				line := fmt.Sprintf("%s\t%s", cal.ID, cal.Title)
				if c.Bool("check") {
					line += "\t" + checkCalendar(c.Context, a, userID, acc, cal.ID)
				}
				fmt.Println(line)
			}
			return nil
		}),
	}
}

func checkCalendar(ctx context.Context, a *app, userID, acc, calID string) string {
	mgr, err := a.provider.Manager(ctx, userID, acc, calID)
	if err != nil {
		return string(apperr.KindOf(err))
	}
	ok, err := mgr.CalendarExists(ctx)
	switch {
	case err != nil:
		return string(apperr.KindOf(err))
	case !ok:
		return "missing"
	}
	return "ok"
}

func validateICSCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate-ics",
		Usage: "Fetch and parse an ICS URL.",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "url", Required: true, Usage: "ICS URL (http, https or webcal)."},
		},
		Action: withApp(func(c *cli.Context, a *app) error {
			res, err := a.ics.ValidateURL(c.Context, c.String("url"), map[string]string{
				events.MetaUserID: c.String("user"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("valid: %d events\n", len(res.Events))
			return nil
		}),
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a sync profile and run its first sync.",
		Flags: []cli.Flag{
			userFlag(),
			accountFlag(),
			&cli.StringFlag{Name: "title", Required: true, Usage: "Profile title."},
			&cli.StringFlag{Name: "url", Required: true, Usage: "ICS URL of the schedule."},
			&cli.StringFlag{Name: "calendar", Usage: "Existing calendar id to adopt."},
			&cli.StringFlag{Name: "new-calendar", Usage: "Title of a calendar to create instead."},
			&cli.StringFlag{Name: "description", Usage: "Description of the new calendar."},
			&cli.StringFlag{Name: "color", Usage: "Color of the new calendar (lavender, sage, ...)."},
		},
		Action: withApp(func(c *cli.Context, a *app) error {
			target := syncer.TargetRequest{ProviderAccountID: c.String("account"), CalendarID: c.String("calendar")}
			if title := c.String("new-calendar"); title != "" {
				color := models.Color(c.String("color"))
				if color != "" && !color.IsValid() {
					return apperr.New(apperr.Validation, "unknown color %q", color)
				}
				target.New = &calendar.NewCalendar{Title: title, Description: c.String("description"), Color: color}
			}

			p, err := a.syncer.Create(c.Context, c.String("user"), syncer.CreateRequest{
				Title:          c.String("title"),
				ScheduleSource: c.String("url"),
				Target:         target,
			})
			if err != nil {
				return err
			}
			printProfile(p)
			return nil
		}),
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize one sync profile now.",
		Flags: []cli.Flag{
			userFlag(),
			profileFlag(),
			&cli.BoolFlag{Name: "full", Usage: "Replace every event, past ones included."},
			&cli.BoolFlag{Name: "force", Usage: "Ignore the profile state and the daily limit."},
		},
		Action: withApp(func(c *cli.Context, a *app) error {
			syncType := profile.SyncRegular
			if c.Bool("full") {
				syncType = profile.SyncFull
			}
			userID, id := c.String("user"), c.String("profile")
			if err := a.syncer.Synchronize(c.Context, userID, id, profile.TriggerManual, syncType, c.Bool("force")); err != nil {
				return err
			}
			p, err := a.profiles.Get(c.Context, userID, id)
			if err != nil {
				return err
			}
			printProfile(p)
			return nil
		}),
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a sync profile and the events it created.",
		Flags: []cli.Flag{userFlag(), profileFlag()},
		Action: withApp(func(c *cli.Context, a *app) error {
			userID, id := c.String("user"), c.String("profile")
			if err := a.syncer.Delete(c.Context, userID, id); err != nil {
				return err
			}
			if p, err := a.profiles.Get(c.Context, userID, id); err == nil {
				// Still present: skipped or failed.
				printProfile(p)
				return nil
			}
			fmt.Println("deleted")
			return nil
		}),
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the sync profiles of a user.",
		Flags: []cli.Flag{userFlag()},
		Action: withApp(func(c *cli.Context, a *app) error {
			ps, err := a.profiles.ListForUser(c.Context, c.String("user"))
			if err != nil {
				return err
			}
			for i := range ps {
				printProfile(&ps[i])
			}
			return nil
		}),
	}
}

func printProfile(p *profile.SyncProfile) {
	fmt.Printf("%s\t%s\t%s", p.ID, p.Title, p.Status.Type)
	if p.Status.Message != "" {
		fmt.Printf("\t%s", p.Status.Message)
	}
	if p.LastSuccessfulSync != nil {
		fmt.Printf("\tlast_success=%s", p.LastSuccessfulSync.Format(time.RFC3339))
	}
	if p.RulesetError != "" {
		fmt.Printf("\truleset_error=%s", p.RulesetError)
	}
	fmt.Println()
}
