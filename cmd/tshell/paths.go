package main

import "tools.zach/dev/tshell/internal/paths"

// ///////////////////////////////////////////////
// Path Aliases
// ///////////////////////////////////////////////

// DataPaths aliases [paths.DataDir] into the main package.
type DataPaths = paths.DataDir
