// shieldcore is the content-blocking rule-set service: it compiles block-rule
// resources into rule sets, keeps them up to date, and serves them according
// to the user's shield preferences.
package main

import "github.com/Libertus-Lab/shieldcore/internal/cmd"

func main() {
	cmd.Main()
}
