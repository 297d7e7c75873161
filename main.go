package main

import (
	"github.com/bigupd/bigupd/cmd/gc"
	"github.com/bigupd/bigupd/cmd/server"
	"github.com/bigupd/bigupd/cmd/token"
	"github.com/bigupd/bigupd/cmd/version"
	bigup "github.com/bigupd/bigupd/server"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	_ "net/http/pprof"
)

var (
	VERSION     string
	BUILD_TIME  string
	GO_VERSION  string
	GIT_VERSION string
)

func main() {
	bigup.VERSION = VERSION
	bigup.BUILD_TIME = BUILD_TIME
	bigup.GO_VERSION = GO_VERSION
	bigup.GIT_VERSION = GIT_VERSION
	root := cobra.Command{Use: "bigupd"}
	root.AddCommand(
		version.Cmd,
		server.Cmd,
		gc.Cmd,
		token.Cmd,
	)
	root.Execute()
}
