package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"unihelp/internal/service"
)

func newEmailCmd(a *app) *cobra.Command {
	var (
		name, studentID, address, info string
		list, asJSON                   bool
	)
	cmd := &cobra.Command{
		Use:   "email <request type>",
		Short: "Draft an administrative email",
		Long: `Draft an administrative email for a student request.

Examples:
  unihelp email --list
  unihelp email "Attestation de scolarité" --name "Amina Diallo" --student-id 21004512`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				for _, t := range service.RequestTypes {
					fmt.Fprintln(out, t)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("a request type is required (see --list)")
			}
			email, err := a.email.Generate(cmd.Context(), strings.Join(args, " "), []service.StudentDetail{
				{Label: "Nom", Value: name},
				{Label: "Numéro étudiant", Value: studentID},
				{Label: "Email", Value: address},
			}, info)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(email)
			}
			fmt.Fprintf(out, "Objet: %s\n\n%s\n", email.Subject, email.Body)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Student name")
	cmd.Flags().StringVar(&studentID, "student-id", "", "Student number")
	cmd.Flags().StringVar(&address, "email", "", "Student email address")
	cmd.Flags().StringVar(&info, "info", "", "Additional details for the request")
	cmd.Flags().BoolVar(&list, "list", false, "List common request types")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the email as JSON")
	return cmd
}
