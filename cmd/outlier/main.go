package main

import (
	"github.com/mchmarny/outlier/pkg/cli"
)

func main() {
	cli.Execute()
}
