// cmd/libraryctl/main.go
package main

import "libraripro/internal/cli"

func main() {
	cli.Execute()
}
