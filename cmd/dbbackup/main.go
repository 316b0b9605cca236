package main

import "github.com/semmidev/dbbackup/internal/cli"

func main() {
	cli.Execute()
}
