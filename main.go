package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/quickly-form/answers"
	"github.com/danielhkuo/quickly-form/apiclient"
	"github.com/danielhkuo/quickly-form/autosave"
	"github.com/danielhkuo/quickly-form/cliparse"
	"github.com/danielhkuo/quickly-form/console"
	"github.com/danielhkuo/quickly-form/db"
	"github.com/danielhkuo/quickly-form/middleware"
	"github.com/danielhkuo/quickly-form/models"
	"github.com/danielhkuo/quickly-form/router"
	"github.com/danielhkuo/quickly-form/session"
	"github.com/danielhkuo/quickly-form/submission"
)

const usage = `usage: quickly-form <command> [flags] [args]

commands:
  register -email E [-password P]   create an account
  login -email E [-password P]      sign in and store the session
  logout                            revoke the session
  fill [-answers file.json] <id>    answer a form
  status <id>                       show availability, completion and draft
  draft show|delete <id>            inspect or discard a saved draft
  dashboard                         list forms and progress
  activity [-status S] [-page N] [-per-page N]
                                    page through past participation
  forms                             list forms you own
  voters <id>                       show who answered one of your forms
  emulator                          run the local backend

Client commands accept -api, -session, -autosave, -timeout, -retries and -v.
`

// flushTimeout bounds the final draft save on interrupt.
const flushTimeout = 5 * time.Second

func main() {
	if err := cliparse.LoadDotEnv(".env"); err != nil {
		slog.Error("Error loading environment", "error", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "emulator":
		err = runEmulator(args)
	case "register":
		err = runRegister(args)
	case "login":
		err = runLogin(args)
	case "logout":
		err = runLogout(args)
	case "fill":
		err = runFill(args)
	case "status":
		err = runStatus(args)
	case "draft":
		err = runDraft(args)
	case "dashboard":
		err = runDashboard(args)
	case "activity":
		err = runActivity(args)
	case "forms":
		err = runForms(args)
	case "voters":
		err = runVoters(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		slog.Error("Command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newClient(cfg cliparse.ClientConfig) (*apiclient.Client, error) {
	logger := setupLogging(cfg.Verbose)

	sess, err := session.Load(session.NewFileStore(cfg.SessionFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return apiclient.New(cfg.APIURL, sess,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithRetries(cfg.HTTPRetries),
		apiclient.WithLogger(logger),
	), nil
}

// signedInClient is newClient for commands that need a session.
func signedInClient(cfg cliparse.ClientConfig) (*apiclient.Client, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if !client.Session().LoggedIn() {
		return nil, fmt.Errorf("%w: run quickly-form login first", session.ErrNoSession)
	}
	return client, nil
}

func parseFormID(args []string) (uint, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one form ID")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid form ID %q", args[0])
	}
	return uint(id), nil
}

func parseCredentials(name string, args []string) (cliparse.ClientConfig, string, string, error) {
	fs, cfg := cliparse.NewClientFlagSet(name)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return cliparse.ClientConfig{}, "", "", err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cliparse.ClientConfig{}, "", "", err
	}
	if *email == "" {
		return cliparse.ClientConfig{}, "", "", errors.New("-email is required")
	}

	if *password == "" {
		p := console.New(os.Stdin, os.Stderr)
		line, err := p.ReadLine("Password: ")
		if err != nil {
			return cliparse.ClientConfig{}, "", "", fmt.Errorf("failed to read password: %w", err)
		}
		*password = line
	}
	return *cfg, *email, *password, nil
}

func runRegister(args []string) error {
	cfg, email, password, err := parseCredentials("register", args)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	user, err := client.Register(context.Background(), email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s (id %d). Run quickly-form login to sign in.\n", user.Email, user.ID)
	return nil
}

func runLogin(args []string) error {
	cfg, email, password, err := parseCredentials("login", args)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	resp, err := client.Login(context.Background(), email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", resp.User.Email)
	return nil
}

func runLogout(args []string) error {
	cfg, _, err := cliparse.ParseClientFlags("logout", args)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := client.Logout(context.Background()); err != nil {
		// The local session is gone either way
		slog.Warn("failed to revoke refresh token", "error", err)
	}
	fmt.Println("Signed out")
	return nil
}

func runFill(args []string) error {
	fs, cfg := cliparse.NewClientFlagSet("fill")
	answersFile := fs.String("answers", "", "JSON file with answers to submit without prompting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	formID, err := parseFormID(fs.Args())
	if err != nil {
		return err
	}

	client, err := signedInClient(*cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := autosave.NotifierFunc(func(msg string, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "! %s\n", msg)
			return
		}
		slog.Debug(msg, "form_id", formID)
	})

	flow := submission.New(client, formID, client.Session().Identity().Email,
		submission.WithNotifier(notifier),
		submission.WithAutosave(autosave.WithDelay(cfg.AutosaveDelay)),
		submission.WithLogger(slog.Default()),
	)
	if err := flow.Load(ctx); err != nil {
		return err
	}

	p := console.New(os.Stdin, os.Stdout)
	if done := printTerminalState(p, flow); done {
		switch flow.State() {
		case submission.NotFound, submission.AccessError:
			return fmt.Errorf("form %d is unavailable", formID)
		}
		return nil
	}

	if *answersFile != "" {
		err := submitFromFile(ctx, flow, *answersFile)
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if cerr := flow.Close(flushCtx); cerr != nil {
			slog.Warn("failed to save draft", "form_id", formID, "error", cerr)
		}
		return err
	}

	p.Header(flow.Form())

	// Prompting blocks on stdin, so an interrupt is watched separately and
	// the draft flushed before exiting.
	done := make(chan error, 1)
	go func() {
		done <- fillInteractive(ctx, p, flow)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		fmt.Println()
		err = nil
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if cerr := flow.Close(flushCtx); cerr != nil {
		slog.Warn("failed to save draft", "form_id", formID, "error", cerr)
	}

	if errors.Is(err, io.EOF) {
		if flow.State() == submission.Active {
			fmt.Println("Progress saved as a draft.")
		}
		return nil
	}
	return err
}

// printTerminalState reports states that leave nothing to answer.
func printTerminalState(p *console.Prompter, flow *submission.Flow) bool {
	switch flow.State() {
	case submission.NotFound:
		p.Printf("Form not found: %s\n", flow.LastError())
	case submission.AccessError:
		p.Printf("You do not have access to this form: %s\n", flow.LastError())
	case submission.AlreadyCompleted:
		p.Printf("You have already submitted %q.\n", flow.Form().Title)
	case submission.NotAvailable:
		form := flow.Form()
		p.Printf("%q is not accepting answers (%s).\n", form.Title,
			console.DescribeWindow(time.Now(), form.StartAt, form.EndAt))
	default:
		return false
	}
	return true
}

func fillInteractive(ctx context.Context, p *console.Prompter, flow *submission.Flow) error {
	questions := flow.Questions()
	store := flow.Answers()

	// nil prompts every question; afterwards only failed ones are asked again.
	var failed map[uint]string
	for {
		for i, q := range questions {
			errMsg, bad := failed[q.ID]
			if failed != nil && !bad {
				continue
			}
			current, _ := store.Get(q.ID)
			a, err := p.Ask(i+1, len(questions), q, current, errMsg)
			if err != nil {
				return err
			}
			if err := flow.UpdateAnswer(q.ID, a); err != nil {
				return err
			}
		}

		err := flow.Submit(ctx)
		var verr *answers.ValidationError
		switch {
		case errors.As(err, &verr):
			p.Printf("\nSome answers need attention.\n\n")
			failed = verr.Fields
			continue
		case err != nil:
			p.Printf("\nSubmission failed: %s\n", flow.LastError())
			if flow.State() != submission.Active {
				return err
			}
			retry, cerr := p.Confirm("Try again?")
			if cerr != nil {
				return cerr
			}
			if !retry {
				return io.EOF
			}
			failed = map[uint]string{}
			continue
		}

		printResult(p, flow.Result())
		return nil
	}
}

func printResult(p *console.Prompter, resp *models.SubmitFormResponse) {
	p.Printf("\n%s (submission %d, %s)\n", submission.MsgSubmitted, resp.ID,
		resp.CompletedAt.Local().Format(time.DateTime))
}

func submitFromFile(ctx context.Context, flow *submission.Flow, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read answers: %w", err)
	}
	var subs []models.AnswerSubmission
	if err := json.Unmarshal(raw, &subs); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for _, sub := range subs {
		a := answers.Text(sub.TextValue())
		if sub.OptionIDs != nil {
			a = answers.Choice(sub.OptionIDs...)
		}
		if err := flow.UpdateAnswer(sub.QuestionID, a); err != nil {
			return err
		}
	}

	if err := flow.Submit(ctx); err != nil {
		return err
	}
	resp := flow.Result()
	fmt.Printf("%s (submission %d)\n", submission.MsgSubmitted, resp.ID)
	return nil
}

func runStatus(args []string) error {
	cfg, rest, err := cliparse.ParseClientFlags("status", args)
	if err != nil {
		return err
	}
	formID, err := parseFormID(rest)
	if err != nil {
		return err
	}
	client, err := signedInClient(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	form, err := client.PublicForm(ctx, formID)
	if err != nil {
		return err
	}
	now := time.Now()

	fmt.Printf("%s\n", form.Title)
	fmt.Printf("  window:    %s (%s)\n", submission.Window(now, form.StartAt, form.EndAt),
		console.DescribeWindow(now, form.StartAt, form.EndAt))
	fmt.Printf("  questions: %d\n", len(form.Questions))

	submitted, err := client.HasVoted(ctx, formID, client.Session().Identity().Email)
	if err != nil {
		return err
	}
	if submitted {
		fmt.Println("  status:    submitted")
		return nil
	}

	draft, err := client.GetDraft(ctx, formID)
	switch {
	case errors.Is(err, apiclient.ErrNotFound):
		fmt.Println("  status:    not started")
	case err != nil:
		return err
	default:
		fmt.Printf("  status:    draft, %s\n", console.DescribeDraft(now, draft))
	}
	return nil
}

func runDraft(args []string) error {
	if len(args) == 0 || (args[0] != "show" && args[0] != "delete") {
		return errors.New("usage: quickly-form draft show|delete <id>")
	}
	action := args[0]

	cfg, rest, err := cliparse.ParseClientFlags("draft "+action, args[1:])
	if err != nil {
		return err
	}
	formID, err := parseFormID(rest)
	if err != nil {
		return err
	}
	client, err := signedInClient(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if action == "delete" {
		if err := client.DeleteDraft(ctx, formID); err != nil {
			return err
		}
		fmt.Println("Draft deleted")
		return nil
	}

	draft, err := client.GetDraft(ctx, formID)
	if errors.Is(err, apiclient.ErrNotFound) {
		fmt.Println("No draft saved for this form")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s\n  %s\n", draft.FormTitle, console.DescribeDraft(time.Now(), draft))
	for _, a := range draft.Answers {
		if a.OptionIDs != nil {
			fmt.Printf("  question %d: options %v\n", a.QuestionID, a.OptionIDs)
			continue
		}
		fmt.Printf("  question %d: %q\n", a.QuestionID, a.TextValue())
	}
	return nil
}

func runDashboard(args []string) error {
	cfg, _, err := cliparse.ParseClientFlags("dashboard", args)
	if err != nil {
		return err
	}
	client, err := signedInClient(cfg)
	if err != nil {
		return err
	}

	data, err := client.Dashboard(context.Background())
	if err != nil {
		return err
	}
	now := time.Now()

	s := data.Statistics
	fmt.Printf("available %d, in progress %d, completed %d, recent activity %d\n\n",
		s.TotalAvailable, s.TotalInProgress, s.TotalCompleted, s.RecentActivityCount)

	for _, f := range data.Forms {
		line := fmt.Sprintf("%5d  %-12s %s", f.FormID, f.Status, f.FormTitle)
		switch f.Status {
		case models.StatusInProgress:
			line += fmt.Sprintf(" (%.0f%%", f.ProgressPercentage)
			if f.LastModified != nil {
				line += ", saved " + humanize.RelTime(*f.LastModified, now, "ago", "from now")
			}
			line += ")"
		case models.StatusAvailable:
			line += " (" + console.DescribeWindow(now, f.StartAt, f.EndAt) + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runActivity(args []string) error {
	fs, cfg := cliparse.NewClientFlagSet("activity")
	status := fs.String("status", "all", "Filter by status: all, in_progress or completed")
	page := fs.Int("page", 1, "Page number, starting at 1")
	perPage := fs.Int("per-page", 10, "Entries per page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	client, err := signedInClient(*cfg)
	if err != nil {
		return err
	}

	result, err := client.Activities(context.Background(), apiclient.ActivityQuery{
		Status:  *status,
		Page:    *page,
		PerPage: *perPage,
	})
	if err != nil {
		return err
	}
	now := time.Now()

	if len(result.Data) == 0 {
		fmt.Println("No activity")
		return nil
	}
	for _, a := range result.Data {
		line := fmt.Sprintf("%5d  %-12s %s", a.FormID, a.Status, a.FormTitle)
		if a.LastModified != nil {
			line += " (" + humanize.RelTime(*a.LastModified, now, "ago", "from now") + ")"
		}
		fmt.Println(line)
	}
	pages := 1
	if result.PerPage > 0 {
		pages = (result.Total + result.PerPage - 1) / result.PerPage
	}
	fmt.Printf("\npage %d of %d, %s entries\n", result.Page, pages, humanize.Comma(int64(result.Total)))
	return nil
}

func runForms(args []string) error {
	cfg, _, err := cliparse.ParseClientFlags("forms", args)
	if err != nil {
		return err
	}
	client, err := signedInClient(cfg)
	if err != nil {
		return err
	}

	forms, err := client.UserForms(context.Background())
	if err != nil {
		return err
	}
	if len(forms) == 0 {
		fmt.Println("You do not own any forms")
		return nil
	}
	now := time.Now()
	for _, f := range forms {
		fmt.Printf("%5d  %s (%d questions, %s, created %s)\n", f.ID, f.Title, len(f.Questions),
			console.DescribeWindow(now, f.StartAt, f.EndAt), humanize.Time(f.CreatedAt))
	}
	return nil
}

func runVoters(args []string) error {
	cfg, rest, err := cliparse.ParseClientFlags("voters", args)
	if err != nil {
		return err
	}
	formID, err := parseFormID(rest)
	if err != nil {
		return err
	}
	client, err := signedInClient(cfg)
	if err != nil {
		return err
	}

	voters, err := client.Voters(context.Background(), formID)
	if errors.Is(err, apiclient.ErrAccess) {
		return fmt.Errorf("only the owner can list voters: %w", err)
	}
	if err != nil {
		return err
	}
	if len(voters) == 0 {
		fmt.Println("Nobody has answered yet")
		return nil
	}

	now := time.Now()
	completed := 0
	for _, v := range voters {
		line := fmt.Sprintf("  %-30s %-12s", v.Email, v.Status)
		switch {
		case v.CompletedAt != nil:
			completed++
			line += " submitted " + humanize.RelTime(*v.CompletedAt, now, "ago", "from now")
		case v.LastModified != nil:
			line += " saved " + humanize.RelTime(*v.LastModified, now, "ago", "from now")
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d submitted, %d in progress\n", completed, len(voters)-completed)
	return nil
}

func runEmulator(args []string) error {
	// Parse configuration
	cfg, err := cliparse.ParseEmulatorFlags(args)
	if err != nil {
		return err
	}
	setupLogging(cfg.Verbose)

	dbConn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn, cfg.DatabaseType); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	server := http.Server{
		Handler: middleware.CORS(router.NewRouter(dbConn, cfg)),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		server.Close()
	}()

	slog.Info("Listening", "port", cfg.Port, "api", router.APIPrefix)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server closed: %w", err)
	}
	slog.Info("Server closed")
	return nil
}
