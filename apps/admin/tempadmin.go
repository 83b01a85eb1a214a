package main

import (
	"context"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core/tempadmin"
)

func (cli *commandLine) newTempAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tempadmin",
		Short: "Manage temporary admins",
	}
	cmd.AddCommand(
		cli.newTempAdminCreateCmd(),
		cli.newTempAdminRevokeCmd(),
		cli.newTempAdminListCmd(),
		cli.newTempAdminSweepCmd(),
	)
	return cmd
}

func (cli *commandLine) newTempAdminCreateCmd() *cobra.Command {
	var (
		ng           tempadmin.NewGrant
		expiresIn    time.Duration
		withPassword bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Grant temporary admin access. A password is generated unless --with-password is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if withPassword {
				pwd, err := cli.promptPassword("Enter password:")
				if err != nil {
					return err
				}
				ng.Password = pwd
			}
			ng.ExpiresAt = tempadmin.NowFunc().Add(expiresIn)

			grant, pwd, err := cli.tempAdmins.Create(context.Background(), ng)
			if err != nil {
				return err
			}
			cli.printf("temporary admin %s created, expires at %s\n", grant.ID, grant.ExpiresAt.Format(time.RFC3339))
			if pwd != "" {
				cli.printf("password: %s\n", pwd)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ng.Email, "email", "", "the temporary admin's email")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 24*time.Hour, "how long the access lasts")
	cmd.Flags().StringSliceVar(&ng.Permissions, "permission", []string{tempadmin.PermissionAdmin},
		"granted permissions: "+strings.Join(tempadmin.AllPermissions, ", "))
	cmd.Flags().StringVar(&ng.CreatedBy, "created-by", "", "who grants the access")
	cmd.Flags().StringVar(&ng.Reason, "reason", "", "why the access is granted")
	cmd.Flags().BoolVar(&withPassword, "with-password", false, "prompt for the password instead of generating one")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("created-by")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (cli *commandLine) newTempAdminRevokeCmd() *cobra.Command {
	var revokedBy, reason string
	cmd := &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke a temporary admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.tempAdmins.Revoke(context.Background(), args[0], revokedBy, reason); err != nil {
				return err
			}
			cli.printf("temporary admin %s revoked\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&revokedBy, "by", "", "who revokes the access")
	cmd.Flags().StringVar(&reason, "reason", "", "why the access is revoked")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func (cli *commandLine) newTempAdminListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List temporary admins, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			grants, err := cli.tempAdmins.List(context.Background(), all)
			if err != nil {
				return err
			}

			now := tempadmin.NowFunc()
			w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
			_, _ = w.Write([]byte("ID\tEMAIL\tSTATUS\tEXPIRES AT\tPERMISSIONS\tCREATED BY\n"))
			for _, g := range grants {
				_, _ = w.Write([]byte(strings.Join([]string{
					g.ID,
					g.Email,
					g.Status(now),
					g.ExpiresAt.Format(time.RFC3339),
					strings.Join(g.Permissions, ","),
					g.CreatedBy,
				}, "\t") + "\n"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include revoked temporary admins")
	return cmd
}

func (cli *commandLine) newTempAdminSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Revoke every expired temporary admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := cli.tempAdmins.SweepExpired(context.Background())
			if err != nil {
				return err
			}
			cli.printf("%d expired temporary admins revoked\n", count)
			return nil
		},
	}
}
