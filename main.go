package main

import "github.com/relaypull/fetchd/cmd"

func main() {
	cmd.Execute()
}
