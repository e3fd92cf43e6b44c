package users

import "github.com/spf13/cobra"

var (
	emailFlag    string
	nameFlag     string
	roleFlag     string
	passwordFlag string
	stdinFlag    bool
)

// UsersCmd is the parent command for principal management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage portal principals",
	Long:  `Commands for provisioning principals directly from the server. Nothing in the request path creates principals; this is how they come to exist.`,
}

func init() {
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the principal")
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Display name of the principal")
	createCmd.Flags().StringVar(&roleFlag, "role", "customer", "Role: customer, staff, or admin")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Local password (use --stdin to avoid shell history)")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")

	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(listCmd)
}
