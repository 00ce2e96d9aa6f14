package main

import "github.com/lukman83/kidkazz-catalog/cmd"

func main() {
	cmd.Execute()
}
