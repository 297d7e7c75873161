package server

import (
	"github.com/bigupd/bigupd/server"
	"github.com/spf13/cobra"
)

// Cmd run http server
var Cmd = &cobra.Command{
	Use:   "server",
	Short: "Run bigupd server",
	Long:  `Run bigupd server`,
	Run: func(cmd *cobra.Command, args []string) {
		main()
	},
}

func main() {
	server.InitServer()
	server.Start()
}
