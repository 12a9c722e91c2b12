package main

import "github.com/vietddude/buywatch/internal/cli"

func main() {
	cli.Execute()
}
