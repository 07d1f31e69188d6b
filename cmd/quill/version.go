package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of quill",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("quill version 0.3.0")
	},
}
