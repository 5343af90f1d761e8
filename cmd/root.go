package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "briefer"}

	root.AddCommand(serveCMD(), migrateCMD(), askCMD())
	_ = root.Execute()
}
