// Command resetpw sets a new password for an account and signs it out
// everywhere by revoking its refresh token.
//
//	resetpw -user alice [-d postgres://...]
//
// The password is read from the terminal, or from the first line of stdin
// when stdin is not a terminal.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/cryptox"
	"github.com/Cybrite/your-tube/internal/dbx"
	"github.com/Cybrite/your-tube/internal/flagx"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/Cybrite/your-tube/internal/server/repositories/repomanager"
	"golang.org/x/term"
)

var readPassword = func(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(os.Stdin)
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(string(line), "\r\n")), nil
}

func main() {
	cfg := config.LoadConfig()

	username := usernameFrom(os.Args[1:])
	if username == "" {
		log.Fatal("usage: resetpw -user <username> [-d dsn]")
	}

	password, err := promptPassword()
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer common.WipeByteArray(password)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := resetPassword(ctx, db, repomanager.NewPostgresRepositoryManager(), username, password); err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("password for %q reset, sessions revoked\n", username)
}

func usernameFrom(args []string) string {
	var username string
	fs := flag.NewFlagSet("resetpw", flag.ContinueOnError)
	fs.StringVar(&username, "user", "", "username whose password is reset")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-user", "--user"})); err != nil {
		return ""
	}
	return strings.TrimSpace(username)
}

func promptPassword() ([]byte, error) {
	first, err := readPassword("New password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if len(first) == 0 {
		return nil, errors.New("password must not be empty")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return first, nil
	}

	second, err := readPassword("Repeat password: ")
	defer common.WipeByteArray(second)
	if err != nil {
		common.WipeByteArray(first)
		return nil, fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

// resetPassword replaces the password hash and clears the stored refresh
// token in one transaction.
func resetPassword(ctx context.Context, db *sql.DB, rm repomanager.RepositoryManager, username string, password []byte) error {
	hash, err := cryptox.HashPassword(string(password))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := rm.Accounts(tx)

		account, err := accounts.FindByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("user %q does not exist", username)
			}
			return err
		}
		if err := accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
			return err
		}
		return accounts.SetRefreshToken(ctx, account.ID, "")
	})
}
