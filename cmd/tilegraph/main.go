// Command tilegraph runs the tiled factorization and band reduction graphs.
package main

import "yqhp/tilegraph/cmd"

func main() {
	cmd.Execute()
}
