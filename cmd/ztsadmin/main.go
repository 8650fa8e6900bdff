// ztsadmin is the operator CLI for the session core: MFA resets, session
// revocation and cleanup, drift and audit history. It talks to the database directly.
package main

import "zero-trust-session-core/cmd/ztsadmin/cmd"

func main() {
	cmd.Execute()
}
