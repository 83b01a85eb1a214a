package main

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/shule/core/tempadmin"
	"github.com/trezcool/shule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errPasswordRequired = errors.New("a password is required")
)

type commandLine struct {
	db         *sqlx.DB
	usrSvc     *user.Service
	tempAdmins *tempadmin.Manager
	out        io.Writer
}

// run executes the command line `args`, program name included.
func (cli *commandLine) run(args []string) error {
	root := cli.newRootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.Execute()
}

func (cli *commandLine) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Shule administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.newMigrateCmd(),
		cli.newAddUserCmd(),
		cli.newResetPasswordCmd(),
		cli.newTempAdminCmd(),
	)
	return root
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(prompt string) (string, error) {
	cli.printf("%s", prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errPasswordRequired
	}
	return string(pwd), nil
}
