package main

import (
	"github.com/dreamerjackson/leadcrawler/cmd"
)

func main() {
	cmd.Execute()
}
