// cmd/storygraph/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Corphon/StoryGraphStudio/internal/graph"
	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// cliConfig .storygraph.toml 的配置项
type cliConfig struct {
	Stories storiesConfig `toml:"stories"`
}

type storiesConfig struct {
	Dir string `toml:"dir"`
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

func main() {
	root := &cobra.Command{
		Use:   "storygraph",
		Short: "互动小说故事图的命令行工具",
		Long:  "storygraph 在不启动服务器的情况下检查故事文档、构建故事图并导出图文档。",
	}

	root.AddCommand(
		validateCmd(),
		buildCmd(),
		mergeReportCmd(),
	)

	if err := root.Execute(); err != nil {
		errColor.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

// loadCLIConfig 读取工作目录下的 .storygraph.toml（可选）
func loadCLIConfig() cliConfig {
	cfg := cliConfig{
		Stories: storiesConfig{Dir: "data/stories"},
	}

	if _, err := toml.DecodeFile(".storygraph.toml", &cfg); err != nil && !os.IsNotExist(err) {
		warnColor.Fprintf(os.Stderr, "⚠ 读取 .storygraph.toml 失败: %v\n", err)
	}

	return cfg
}

// resolveStoryFile 把参数解析为故事文档路径
// 接受 scenes.json 的直接路径、故事目录、或故事库中的故事ID
func resolveStoryFile(arg string) (string, error) {
	if strings.HasSuffix(arg, ".json") {
		return arg, nil
	}

	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return filepath.Join(arg, "scenes.json"), nil
	}

	cfg := loadCLIConfig()
	candidate := filepath.Join(cfg.Stories.Dir, arg, "scenes.json")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	return "", fmt.Errorf("找不到故事文档: %s", arg)
}

// loadStory 加载并解码故事文档
func loadStory(arg string) (*models.Story, string, error) {
	path, err := resolveStoryFile(arg)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("读取故事文档失败: %w", err)
	}

	story, err := models.DecodeStory(data)
	if err != nil {
		return nil, path, fmt.Errorf("故事文档格式不合法: %w", err)
	}

	return story, path, nil
}

// validateCmd 检查故事结构：悬空目标、重复标识、不可达场景
func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <story>",
		Short: "检查故事文档的结构问题",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			story, path, err := loadStory(args[0])
			if err != nil {
				return err
			}

			dimColor.Printf("%s\n", path)
			fmt.Printf("场景数: %d\n\n", story.SceneCount())

			issues := story.Validate()
			if len(issues) == 0 {
				okColor.Println("✓ 没有发现结构问题")
				return nil
			}

			for _, issue := range issues {
				switch issue.Kind {
				case "dangling_target", "duplicate_home":
					warnColor.Printf("⚠ [%s] %s\n", issue.Kind, issue.Message)
				default:
					dimColor.Printf("· [%s] %s\n", issue.Kind, issue.Message)
				}
			}

			fmt.Printf("\n共 %d 个问题\n", len(issues))
			return nil
		},
	}
}

// buildCmd 从故事构建图并序列化
func buildCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "build <story>",
		Short: "构建故事图并输出图文档",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			story, _, err := loadStory(args[0])
			if err != nil {
				return err
			}

			g := graph.BuildGraph(story)
			data, err := graph.Serialize(g)
			if err != nil {
				return fmt.Errorf("序列化图失败: %w", err)
			}

			if output == "" {
				fmt.Println(string(data))
				return nil
			}

			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("写入图文档失败: %w", err)
			}

			okColor.Printf("✓ 已写入 %s（%d 个节点，%d 条边）\n", output, g.NodeCount(), g.EdgeCount())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件路径（默认打印到标准输出）")
	return cmd
}

// mergeReportCmd 报告每个场景里被合并的平行边
func mergeReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-report <story>",
		Short: "报告同场景内指向同一目标、标签被合并的选项",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			story, _, err := loadStory(args[0])
			if err != nil {
				return err
			}

			merged := 0
			for _, scene := range story.Scene {
				labels := make(map[string][]string)
				order := make([]string, 0)
				for _, opt := range scene.Route {
					if opt.OptionText == "" {
						continue
					}
					if _, seen := labels[opt.Target]; !seen {
						order = append(order, opt.Target)
					}
					labels[opt.Target] = append(labels[opt.Target], opt.OptionText)
				}

				for _, target := range order {
					if len(labels[target]) < 2 {
						continue
					}
					merged++
					fmt.Printf("%s -> %s\n", scene.Home, target)
					dimColor.Printf("  合并标签: %s\n", strings.Join(labels[target], "/"))
				}
			}

			if merged == 0 {
				okColor.Println("✓ 没有被合并的平行边")
			} else {
				fmt.Printf("\n共 %d 条合并边\n", merged)
			}
			return nil
		},
	}
}
