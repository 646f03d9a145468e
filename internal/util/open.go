package util

import (
	"os/exec"
	"runtime"
)

// openCommand 系统默认程序打开文件或网址的命令
func openCommand(goos, target string) []string {
	switch goos {
	case "windows":
		// rundll32 比 cmd /c start 稳定，Windows 7 也可用
		return []string{"rundll32", "url.dll,FileProtocolHandler", target}
	case "darwin":
		return []string{"open", target}
	default:
		return []string{"xdg-open", target}
	}
}

// fallbackCommands 主方式失败后依次尝试
func fallbackCommands(goos, target string) [][]string {
	switch goos {
	case "windows":
		return [][]string{{"explorer", target}}
	case "linux":
		return [][]string{
			{"gio", "open", target},
			{"sensible-browser", target},
		}
	}
	return nil
}

// OpenPath 用系统默认程序打开文件（如生成的模板）或网址
// 支持 Windows 7/10/11, macOS, Linux
func OpenPath(target string) error {
	args := openCommand(runtime.GOOS, target)
	err := exec.Command(args[0], args[1:]...).Start()
	if err == nil {
		return nil
	}
	for _, alt := range fallbackCommands(runtime.GOOS, target) {
		if exec.Command(alt[0], alt[1:]...).Start() == nil {
			return nil
		}
	}
	return err
}
