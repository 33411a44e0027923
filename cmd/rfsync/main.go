// rfsync keeps scenario annotations in Robot Framework and Gherkin test
// files in sync with their Azure DevOps work items.
package main

func main() {
	Execute()
}
