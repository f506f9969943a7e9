package cli

import (
	"fmt"
	"sort"

	"github.com/harun/fieldrec/pkg/recording"
	"github.com/spf13/cobra"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Manage capability grants",
	Long: `Grant, revoke or show capability grants such as microphone recording.
A running server picks up changes made here and releases parked requests.`,
}

var permissionGrantCmd = &cobra.Command{
	Use:   "grant [capability]",
	Short: "Grant a capability (default: recording)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPermission(cmd, args, true)
	},
}

var permissionRevokeCmd = &cobra.Command{
	Use:   "revoke [capability]",
	Short: "Revoke a capability (default: recording)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPermission(cmd, args, false)
	},
}

var permissionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show granted capabilities",
	Args:  cobra.NoArgs,
	RunE:  runPermissionStatus,
}

func init() {
	permissionCmd.AddCommand(permissionGrantCmd, permissionRevokeCmd, permissionStatusCmd)
	rootCmd.AddCommand(permissionCmd)
}

func capabilityArg(args []string) recording.Capability {
	if len(args) == 1 && args[0] != "" {
		return recording.Capability(args[0])
	}
	return recording.CapabilityRecording
}

func runPermission(cmd *cobra.Command, args []string, grant bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	perms, err := a.newPermissions(false)
	if err != nil {
		return err
	}

	c := capabilityArg(args)
	if grant {
		if err := perms.Grant(c); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Granted %s\n", c)
		return nil
	}

	if err := perms.Revoke(c); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Revoked %s\n", c)
	return nil
}

func runPermissionStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	perms, err := a.newPermissions(false)
	if err != nil {
		return err
	}

	status := perms.Status()
	if !status[recording.CapabilityRecording] {
		status[recording.CapabilityRecording] = false
	}

	names := make([]string, 0, len(status))
	for c := range status {
		names = append(names, string(c))
	}
	sort.Strings(names)

	for _, name := range names {
		state := "not granted"
		if status[recording.Capability(name)] {
			state = "granted"
		}
		fmt.Fprintf(a.out, "%s: %s\n", name, state)
	}
	return nil
}
