package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var Version = "dev"

// errNotCanonical makes check exit non-zero without printing an error.
var errNotCanonical = errors.New("not in canonical form")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errNotCanonical):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "misli",
		Short:         "Read, check and serve misli note files",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		groupsCmd(),
		getCmd(),
		checkCmd(),
		exportCmd(),
		hashPasswordCmd(),
		serveCmd(),
	)

	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password on stdin and print its bcrypt hash for MCP_AUTH_USERS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return hashPassword(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), bcrypt.DefaultCost)
		},
	}
}

func hashPassword(stdin io.Reader, stdout, stderr io.Writer, cost int) error {
	fmt.Fprint(stderr, "Enter password: ")
	scanner := bufio.NewScanner(stdin)
	if !scanner.Scan() {
		return errors.New("no input")
	}

	password := scanner.Text()
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, string(hash))
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a note library over MCP (stdio or HTTP), configured by environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}
