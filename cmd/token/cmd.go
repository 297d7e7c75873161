package token

import (
	"fmt"
	"os"

	"github.com/bigupd/bigupd/server"
	"github.com/spf13/cobra"
)

// Cmd issue an upload token for one form field, for debugging a host
// integration by hand
var Cmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an upload token for a form field",
	Long:  `Issue an upload token for a form field`,
	Run: func(cmd *cobra.Command, args []string) {
		main()
	},
}

var (
	form     string
	formArgs string
	field    string
)

func init() {
	Cmd.Flags().StringVar(&form, "form", "", "form name")
	Cmd.Flags().StringVar(&formArgs, "args", "", "form arguments hash")
	Cmd.Flags().StringVar(&field, "field", "", "field name (input name attribute)")
}

func main() {
	if form == "" || formArgs == "" || field == "" {
		fmt.Println("--form, --args and --field are required")
		os.Exit(1)
	}
	server.InitServer()
	fmt.Println(server.IssueToken(form, formArgs, field))
}
