package gc

import (
	"fmt"
	"time"

	"github.com/bigupd/bigupd/server"
	"github.com/spf13/cobra"
)

// Cmd run one garbage-collection sweep over the upload cache and exit
var Cmd = &cobra.Command{
	Use:   "gc",
	Short: "Sweep stale uploads from the cache",
	Long:  `Sweep stale uploads from the cache`,
	Run: func(cmd *cobra.Command, args []string) {
		main()
	},
}

var maxAge int

func init() {
	Cmd.Flags().IntVar(&maxAge, "max-age", 0, "max age of cache files in seconds (0: use config)")
}

func main() {
	server.InitServer()
	age := time.Duration(maxAge) * time.Second
	if maxAge <= 0 {
		age = server.GcMaxAge()
	}
	n := server.GarbageCollect(age)
	fmt.Printf("removed %d stale entries\n", n)
}
