package main

import "github.com/thereayou/classroom-rtc/cmd/server"

func main() {
	server.Execute()
}
