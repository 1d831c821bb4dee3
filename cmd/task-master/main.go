// Command task-master synchronizes a Task Master task store with an
// Obsidian vault.
package main

import "github.com/GasparDanilo/obsidian-task-master/internal/cli"

func main() {
	cli.Execute()
}
