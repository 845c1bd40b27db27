// Command adventurectl validates adventure files and replays outcome
// sequences through them without a judge or a database.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/api"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
	"github.com/AaronLay10/AdventureEngine/internal/config"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const usage = `adventurectl - offline tools for adventure graphs

Usage:
  adventurectl validate [-policy single|multiple|forbidden] FILE
  adventurectl simulate [-policy ...] [-json] FILE OUTCOME...
  adventurectl token -sub USER [-roles author,solver] [-ttl 24h]

OUTCOME is correct, incorrect, c or i.
token signs with ADVENTURE_JWT_SECRET (or ADVENTURE_JWT_SECRET_FILE).
`

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintln(os.Stderr, exitErr.Message)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitInvalid)
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return &ExitError{Code: exitUsage, Message: "missing command"}
	}
	switch args[0] {
	case "validate":
		return validateCmd(args[1:], stdout, stderr)
	case "simulate":
		return simulateCmd(args[1:], stdout, stderr)
	case "token":
		return tokenCmd(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return &ExitError{Code: exitUsage, Message: fmt.Sprintf("unknown command %q", args[0])}
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return &ExitError{Code: exitOK, Message: ""}
		}
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}
	return nil
}

func policyFor(name string) (adventure.Policy, error) {
	cfg := config.Default()
	cfg.Validation.DefaultEdges = name
	p, err := cfg.DefaultEdgePolicy()
	if err != nil {
		return adventure.Policy{}, &ExitError{Code: exitUsage, Message: err.Error()}
	}
	return p, nil
}

// load reads path and builds it into an adventure under policy.
func load(path string, p adventure.Policy) (adventure.Adventure, error) {
	doc, err := adventure.LoadDocument(path)
	if err != nil {
		return adventure.Adventure{}, &ExitError{Code: exitInvalid, Message: err.Error()}
	}
	adv, v := adventure.Draft{
		Name:        doc.Name,
		Description: doc.Description,
		CreatorID:   "adventurectl",
		Graph:       doc.Graph,
	}.Build(p, time.Now())
	if v != nil {
		return adventure.Adventure{}, v
	}
	return adv, nil
}

func validateCmd(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("validate", stderr)
	policyName := fs.String("policy", "", "default edge policy: single, multiple or forbidden")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return &ExitError{Code: exitUsage, Message: "validate takes exactly one FILE"}
	}
	p, err := policyFor(*policyName)
	if err != nil {
		return err
	}

	adv, err := load(fs.Arg(0), p)
	var v *adventure.Violation
	if errors.As(err, &v) {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return &ExitError{Code: exitInvalid, Message: v.Error()}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s: valid (%d problems, %d connections, start %s, end %s)\n",
		adv.Name, len(adv.Graph.Nodes), len(adv.Graph.Edges), adv.StartNodeID, adv.EndNodeID)
	return nil
}

func parseOutcome(s string) (adventure.Outcome, error) {
	switch strings.ToLower(s) {
	case "correct", "c":
		return adventure.OutcomeCorrect, nil
	case "incorrect", "i":
		return adventure.OutcomeIncorrect, nil
	}
	return "", &ExitError{Code: exitUsage, Message: fmt.Sprintf("unknown outcome %q", s)}
}

func simulateCmd(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("simulate", stderr)
	policyName := fs.String("policy", "", "default edge policy: single, multiple or forbidden")
	asJSON := fs.Bool("json", false, "print the final attempt as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return &ExitError{Code: exitUsage, Message: "simulate needs a FILE"}
	}

	outcomes := make([]adventure.Outcome, 0, fs.NArg()-1)
	for _, raw := range fs.Args()[1:] {
		o, err := parseOutcome(raw)
		if err != nil {
			return err
		}
		outcomes = append(outcomes, o)
	}

	p, err := policyFor(*policyName)
	if err != nil {
		return err
	}
	adv, err := load(fs.Arg(0), p)
	if err != nil {
		var v *adventure.Violation
		if errors.As(err, &v) {
			return &ExitError{Code: exitInvalid, Message: v.Error()}
		}
		return err
	}

	coord := attempt.NewCoordinator()
	sess, err := coord.Start(adv, attempt.KindGuest, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "start at %s\n", sess.CurrentNodeID)

	for i, o := range outcomes {
		at := sess.CurrentNodeID
		next, step, err := coord.Submit(adv.Graph, sess, at, o, "")
		if err != nil {
			return &ExitError{Code: exitInvalid, Message: fmt.Sprintf("step %d: %v", i+1, err)}
		}
		sess = next
		switch {
		case step.Completed:
			fmt.Fprintf(stdout, "%d. %s %s: completed\n", i+1, at, o)
		case step.Held:
			fmt.Fprintf(stdout, "%d. %s %s: held\n", i+1, at, o)
		default:
			fmt.Fprintf(stdout, "%d. %s %s: -> %s via %s\n", i+1, at, o, step.NextNodeID, step.EdgeID)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	}
	fmt.Fprintf(stdout, "status %s at %s after %d submissions\n", sess.Status(), sess.CurrentNodeID, len(outcomes))
	return nil
}

func tokenCmd(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("token", stderr)
	sub := fs.String("sub", "", "user id to put in the token subject")
	rolesFlag := fs.String("roles", "solver", "comma separated roles: author, solver")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *sub == "" {
		return &ExitError{Code: exitUsage, Message: "token needs -sub"}
	}

	var roles []api.Role
	for _, r := range strings.Split(*rolesFlag, ",") {
		switch role := api.Role(strings.TrimSpace(r)); role {
		case api.RoleAuthor, api.RoleSolver:
			roles = append(roles, role)
		case "":
		default:
			return &ExitError{Code: exitUsage, Message: fmt.Sprintf("unknown role %q", role)}
		}
	}

	auth, err := api.AuthenticatorFromEnv()
	if err != nil {
		return err
	}
	token, err := auth.Issue(*sub, roles, *ttl)
	if err != nil {
		return fmt.Errorf("%s is not set: %w", api.SecretEnv, err)
	}
	fmt.Fprintln(stdout, token)
	return nil
}
