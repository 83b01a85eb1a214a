package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core/user"
)

func (cli *commandLine) newAddUserCmd() *cobra.Command {
	var (
		nu      user.NewUser
		isAdmin bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user. The password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := cli.promptPassword("Enter password:")
			if err != nil {
				return err
			}
			nu.Password, nu.PasswordConfirm = pwd, pwd
			if isAdmin {
				nu.Roles = user.AllRoles
			}

			usr, err := cli.usrSvc.Create(context.Background(), nu)
			if err != nil {
				return err
			}
			cli.printf("user %s created\n", usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nu.Name, "name", "", "the user's full name")
	cmd.Flags().StringVar(&nu.Username, "username", "", "the user's username")
	cmd.Flags().StringVar(&nu.Email, "email", "", "the user's email")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "give the user every role")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
