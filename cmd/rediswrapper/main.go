package main

import "github.com/nimburion/rediswrapper/pkg/cli"

func main() {
	cli.Execute(cli.NewRootCommand())
}
