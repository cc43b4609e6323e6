package main

import "github.com/sugang-app/apiserver/cmd"

func main() {
	cmd.Execute()
}
