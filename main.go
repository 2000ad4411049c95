package main

import "vitals-manager/cmd"

func main() {
	cmd.Execute()
}
