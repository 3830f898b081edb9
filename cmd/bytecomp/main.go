package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(mainAux(os.Args[1:]))
}

func mainAux(args []string) int {
	if handled, code := dispatchSubcommand(args); handled {
		return code
	}
	if len(args) > 0 {
		fmt.Printf("unknown subcommand %q\n", args[0])
	}
	printRootSubcommandUsage()
	return 1
}
