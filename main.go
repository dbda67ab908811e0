// Command articled fetches articles and extracts their content.
package main

import "github.com/JakeFAU/article-pipeline/cmd"

func main() {
	cmd.Execute()
}
