package main

import "github.com/dbsmedya/dbpromote/cmd/dbpromote/cmd"

func main() {
	cmd.Execute()
}
