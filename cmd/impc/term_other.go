//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package main

import "os"

func isTerminal(*os.File) bool { return false }
