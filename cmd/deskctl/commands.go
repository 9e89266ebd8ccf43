package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/application"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// app holds what every command needs.
type app struct {
	guard     *application.SessionGuard
	resources *application.DeltaUpdater

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newApp(guard *application.SessionGuard, resources *application.DeltaUpdater) *app {
	return &app{
		guard:     guard,
		resources: resources,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

func commandTable() []command {
	return []command{
		{name: "login", usage: "login -u <username> [-p <password>]", summary: "Log in and cache the session", run: runLogin},
		{name: "logout", usage: "logout", summary: "Drop the cached session", run: runLogout},
		{name: "register", usage: "register -u <username> -e <email> [-p <password>] [--admin]", summary: "Create an account (does not log in)", run: runRegister},
		{name: "whoami", usage: "whoami", summary: "Show the logged-in account", run: runWhoami},
		{name: "list", usage: "list <resource> [--offset n] [--limit n] [--sort field] [--order ASC|DESC]", summary: "List records of a resource", run: runList},
		{name: "get", usage: "get <resource> <id>", summary: "Show one record", run: runGet},
		{name: "create", usage: "create <resource> --data '<json>'", summary: "Create a record", run: runCreate},
		{name: "update", usage: "update <resource> <id> --data '<json>'", summary: "Change fields of a record, sending only what differs", run: runUpdate},
		{name: "delete", usage: "delete <resource> <id>", summary: "Delete a record", run: runDelete},
	}
}

func (a *app) lookup(name string) (command, bool) {
	for _, c := range commandTable() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	username := fs.StringP("username", "u", "", "account name")
	password := fs.StringP("password", "p", "", "password (read from stdin when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return usagef("--username is required")
	}
	if *password == "" {
		var err error
		if *password, err = a.readSecret("password"); err != nil {
			return err
		}
	}

	if _, err := a.guard.Login(ctx, model.LoginInput{Username: *username, Password: *password}); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "logged in as %s\n", *username)
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 {
		return usagef("logout takes no arguments")
	}
	if err := a.guard.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "logged out")
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := a.flags("register")
	username := fs.StringP("username", "u", "", "account name")
	email := fs.StringP("email", "e", "", "email address")
	password := fs.StringP("password", "p", "", "password (read from stdin when omitted)")
	admin := fs.Bool("admin", false, "request administrator rights")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return usagef("--username and --email are required")
	}
	if *password == "" {
		var err error
		if *password, err = a.readSecret("password"); err != nil {
			return err
		}
	}

	user, err := a.guard.Register(ctx, model.Registration{
		Username: *username,
		Email:    *email,
		Password: *password,
		Admin:    *admin,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "registered %s (id %d); run deskctl login to start a session\n", user.Username, user.ID)
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 {
		return usagef("whoami takes no arguments")
	}
	if a.guard.CurrentCredential() == nil {
		fmt.Fprintln(a.stdout, "not logged in")
		return nil
	}

	user, err := a.guard.CurrentUser(ctx)
	if err != nil {
		return err
	}
	role := "user"
	if user.Admin {
		role = "admin"
	}
	fmt.Fprintf(a.stdout, "%s <%s> (%s), session expires %s\n",
		user.Username, user.Email, role, a.guard.ExpiresAt().Local().Format(time.RFC1123))
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := a.flags("list")
	offset := fs.Int("offset", 0, "first record to return")
	limit := fs.Int("limit", 0, "page size (0 for all)")
	sortField := fs.String("sort", "", "field to sort by")
	order := fs.String("order", "ASC", "sort direction, ASC or DESC")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("expected a resource name")
	}
	resource, err := model.ParseResource(fs.Arg(0))
	if err != nil {
		return usagef("%v", err)
	}
	sortOrder := model.SortOrder(strings.ToUpper(*order))
	if sortOrder != model.SortAsc && sortOrder != model.SortDesc {
		return usagef("--order must be ASC or DESC")
	}
	if *offset < 0 || *limit < 0 {
		return usagef("--offset and --limit must not be negative")
	}

	page, err := a.resources.List(ctx, resource, model.ListParams{
		Offset:    *offset,
		Limit:     *limit,
		SortField: *sortField,
		SortOrder: sortOrder,
	})
	if err != nil {
		return err
	}
	if err := a.printJSON(page.Records); err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "%d of %d %s\n", len(page.Records), page.Total, resource)
	return nil
}

func runGet(ctx context.Context, a *app, args []string) error {
	resource, id, err := resourceAndID(args)
	if err != nil {
		return err
	}
	rec, err := a.resources.Get(ctx, resource, id)
	if err != nil {
		return err
	}
	return a.printJSON(rec)
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create")
	data := fs.String("data", "", "record as a JSON object, or - to read it from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("expected a resource name")
	}
	resource, err := model.ParseResource(fs.Arg(0))
	if err != nil {
		return usagef("%v", err)
	}
	rec, err := a.readRecord(*data)
	if err != nil {
		return err
	}

	created, err := a.resources.Create(ctx, resource, rec)
	if err != nil {
		return err
	}
	return a.printJSON(created)
}

// runUpdate fetches the record first so the edit can be diffed against the
// state it was made from.
func runUpdate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("update")
	data := fs.String("data", "", "fields to change as a JSON object, or - to read them from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resource, id, err := resourceAndID(fs.Args())
	if err != nil {
		return err
	}
	changes, err := a.readRecord(*data)
	if err != nil {
		return err
	}

	original, err := a.resources.Get(ctx, resource, id)
	if err != nil {
		return err
	}
	edited := make(model.Record, len(original)+len(changes))
	for k, v := range original {
		edited[k] = v
	}
	for k, v := range changes {
		edited[k] = v
	}

	updated, err := a.resources.Update(ctx, resource, id, edited, original)
	if err != nil {
		return err
	}
	return a.printJSON(updated)
}

func runDelete(ctx context.Context, a *app, args []string) error {
	resource, id, err := resourceAndID(args)
	if err != nil {
		return err
	}
	if err := a.resources.Delete(ctx, resource, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %s/%d\n", resource, id)
	return nil
}

func resourceAndID(args []string) (model.Resource, int64, error) {
	if len(args) != 2 {
		return "", 0, usagef("expected a resource name and an id")
	}
	resource, err := model.ParseResource(args[0])
	if err != nil {
		return "", 0, usagef("%v", err)
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, usagef("invalid id %q", args[1])
	}
	return resource, id, nil
}

// readRecord decodes a JSON object from raw, or from stdin when raw is "-".
func (a *app) readRecord(raw string) (model.Record, error) {
	if raw == "" {
		return nil, usagef("--data is required")
	}
	var src io.Reader = strings.NewReader(raw)
	if raw == "-" {
		src = a.stdin
	}

	dec := json.NewDecoder(src)
	dec.UseNumber()
	var rec model.Record
	if err := dec.Decode(&rec); err != nil || rec == nil {
		return nil, usagef("--data must be a JSON object")
	}
	return rec, nil
}

// readSecret prompts for a secret. On a terminal echo is disabled; otherwise
// the first line of stdin is used so scripts can pipe it in.
func (a *app) readSecret(name string) (string, error) {
	fmt.Fprintf(a.stderr, "%s: ", name)

	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
		return string(secret), nil
	}

	scanner := bufio.NewScanner(a.stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
		return "", usagef("no %s given", name)
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

func (a *app) printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	out.WriteByte('\n')
	_, err = a.stdout.Write(out.Bytes())
	return err
}
