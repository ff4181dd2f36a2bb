// Command hash-generator prints the bcrypt hash to store in
// auth.trigger_token_hash for a scheduler trigger secret.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/recaphq/recap-api/internal/service/auth"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-generator [secret]",
		Short: "Hash a trigger secret with bcrypt",
		Long:  "Hash a trigger secret with bcrypt. Without an argument the secret is read from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(args, in)
			if err != nil {
				return err
			}
			hash, err := auth.HashTrigger(secret, cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, hash)
			return err
		},
	}
	cmd.SetOut(out)
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")
	return cmd
}

func readSecret(args []string, in io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	return secret, nil
}
