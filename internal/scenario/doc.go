// Package scenario loads TOML scenario files for the CLI runner.
//
// A scenario is an ordered list of steps. Each step sends one message to
// the agent under a chosen delivery mode and evaluates expectations over
// the collected replies:
//
//	name = "greeting"
//
//	[[steps]]
//	name = "say hello"
//	mode = "expectReplies"
//	text = "hello"
//
//	[[steps.expect]]
//	quantifier = "for_any"
//	[steps.expect.that]
//	text = "~hello"
//
// ${VAR} references are expanded from the environment before decoding,
// matching the config loader's convention.
package scenario
