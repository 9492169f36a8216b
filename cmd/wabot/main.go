package main

import (
	"os"

	"wabot/bot"
)

func main() {
	os.Exit(bot.Main())
}
