package main

import (
	"github.com/bis0908/naver-blog-image-downloader/cmd/nbid/cmd"
)

func main() {
	cmd.Execute()
}
