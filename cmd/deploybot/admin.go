package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/notify"
	"github.com/ebops/deploybot/storage"
	"github.com/ebops/deploybot/workflow"
)

// openExistingStore opens the database for admin commands that inspect or
// mutate existing state. A missing file means initdb never ran, which gets
// a friendlier diagnostic than a raw SQL error would.
func openExistingStore(path string) (*storage.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("数据库文件不存在: %s。请先运行 deploybot initdb 初始化数据库", path)
	}
	return storage.Open(path)
}

// configSeed is one app-config value initdb writes when absent.
type configSeed struct {
	key   string
	value string
}

func initDBCmd(opts *options) *cobra.Command {
	var (
		force      bool
		botToken   string
		approver   string
		approverID string
		ssoEnabled bool
		ssoURL     string
		ssoToken   string
		ssoAuthz   string
	)

	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Initialise the database: schema, project options, app config",
		Long: `Initdb migrates the database schema, imports the project options document
(JSON or YAML), and seeds app-config values from the flags below. Existing
options and config values are kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds := []configSeed{
				{config.KeyBotToken, strings.TrimSpace(botToken)},
				{config.KeyApproverUsername, strings.TrimPrefix(strings.TrimSpace(approver), "@")},
				{config.KeyApproverUserID, strings.TrimSpace(approverID)},
				{config.KeySSOURL, strings.TrimSpace(ssoURL)},
				{config.KeySSOAuthToken, strings.TrimSpace(ssoToken)},
				{config.KeySSOAuthorization, strings.TrimSpace(ssoAuthz)},
			}
			if cmd.Flags().Changed("sso-enabled") {
				seeds = append(seeds, configSeed{config.KeySSOEnabled, strconv.FormatBool(ssoEnabled)})
			}
			return runInitDB(cmd.Context(), *opts, seeds, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing options and config values")
	cmd.Flags().StringVar(&botToken, "bot-token", "", "Chat bot token (BOT_TOKEN)")
	cmd.Flags().StringVar(&approver, "approver", "", "Approver username, with or without @ (APPROVER_USERNAME)")
	cmd.Flags().StringVar(&approverID, "approver-id", "", "Approver numeric user id (APPROVER_USER_ID)")
	cmd.Flags().BoolVar(&ssoEnabled, "sso-enabled", false, "Enable release-ticket submission (SSO_ENABLED)")
	cmd.Flags().StringVar(&ssoURL, "sso-url", "", "Release-ticket endpoint (SSO_URL)")
	cmd.Flags().StringVar(&ssoToken, "sso-auth-token", "", "Release-ticket Auth-token header (SSO_AUTH_TOKEN)")
	cmd.Flags().StringVar(&ssoAuthz, "sso-authorization", "", "Release-ticket Authorization header (SSO_AUTHORIZATION)")

	return cmd
}

func runInitDB(ctx context.Context, opts options, seeds []configSeed, force bool) error {
	store, err := storage.Open(opts.dbPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	fmt.Println("步骤 1/3: 初始化数据库表结构")
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := store.SeedMessageTemplates(ctx, notify.DefaultTemplates()); err != nil {
		return fmt.Errorf("seed message templates: %w", err)
	}
	fmt.Println("✅ 数据库表结构初始化完成")

	fmt.Println("\n步骤 2/3: 导入项目配置")
	has, err := store.HasProjectOptions(ctx)
	if err != nil {
		return fmt.Errorf("check project options: %w", err)
	}
	switch {
	case has && !force:
		fmt.Println("⚠️  项目配置已存在于数据库中，使用 --force 覆盖")
	default:
		projects, doc, err := loadOptionsDoc(opts.optionsPath)
		if err != nil {
			return err
		}
		if err := store.UpdateProjectOptions(ctx, doc); err != nil {
			return fmt.Errorf("import project options: %w", err)
		}
		fmt.Printf("✅ 项目配置已导入到数据库（%d 个项目）\n", len(projects.Projects))
	}

	fmt.Println("\n步骤 3/3: 初始化应用配置")
	for _, seed := range seeds {
		if seed.value == "" {
			continue
		}
		if err := seedConfig(ctx, store, seed.key, seed.value, force); err != nil {
			return err
		}
	}

	fmt.Println("\n✅ 数据库初始化完成")
	return nil
}

// loadOptionsDoc reads the options document from disk, accepting YAML as
// well as the canonical JSON. YAML input is converted to JSON before
// validation, since the store and the options cache only speak JSON.
func loadOptionsDoc(path string) (*config.Options, []byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read options file: %w", err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, nil, fmt.Errorf("parse options yaml: %w", err)
		}
		doc, err := json.Marshal(tree)
		if err != nil {
			return nil, nil, fmt.Errorf("convert options to json: %w", err)
		}
		opts, err := config.ParseOptions(doc)
		if err != nil {
			return nil, nil, err
		}
		return opts, doc, nil
	default:
		return config.LoadOptionsFile(path)
	}
}

// seedConfig writes one app-config value, keeping an existing value unless
// force is set.
func seedConfig(ctx context.Context, store *storage.Store, key, value string, force bool) error {
	current, err := store.GetConfig(ctx, key, "")
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if current != "" && !force {
		fmt.Printf("ℹ️  %s 已存在于数据库中，跳过初始化\n", key)
		return nil
	}
	if err := store.SetConfig(ctx, key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	fmt.Printf("✅ %s 已写入数据库\n", key)
	return nil
}

func queryDBCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "querydb",
		Short: "Print the project options stored in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openExistingStore(opts.dbPath())
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := store.GetProjectOptions(cmd.Context())
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Println("❌ 配置不存在于数据库中")
				fmt.Println("提示: 请先运行 deploybot initdb 初始化数据库")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read project options: %w", err)
			}

			fmt.Println("✅ 配置已存在于数据库中")
			fmt.Println("\n配置内容:")
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, doc, "", "  "); err != nil {
				fmt.Println(string(doc))
				return nil
			}
			fmt.Println(pretty.String())
			return nil
		},
	}
}

func workflowsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows [id]",
		Short: "Show workflow statistics, or one workflow in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openExistingStore(opts.dbPath())
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return printWorkflowDetail(cmd.Context(), store, args[0])
			}
			return printWorkflowSummary(cmd.Context(), store)
		},
	}
}

func printWorkflowSummary(ctx context.Context, store *storage.Store) error {
	counts, err := store.CountWorkflowsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count workflows: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	fmt.Println("📊 统计信息:")
	fmt.Printf("  - 总工作流数: %d\n", total)
	fmt.Printf("  - 待审批: %d\n", counts[workflow.StatusPending])
	fmt.Printf("  - 已通过: %d\n", counts[workflow.StatusApproved])
	fmt.Printf("  - 已拒绝: %d\n", counts[workflow.StatusRejected])

	recent, err := store.ListRecentWorkflows(ctx, 10)
	if err != nil {
		return fmt.Errorf("list recent workflows: %w", err)
	}

	fmt.Println("\n📋 最近的工作流（最多10条）:")
	if len(recent) == 0 {
		fmt.Println("   (暂无工作流数据)")
		return nil
	}
	for i, wf := range recent {
		fmt.Printf("\n%d. 工作流ID: %s\n", i+1, wf.ID)
		fmt.Printf("   提交人: @%s\n", wf.Username)
		fmt.Printf("   状态: %s\n", wf.Status)
		if wf.ApproverUsername != nil {
			fmt.Printf("   审批人: @%s\n", *wf.ApproverUsername)
		}
		fmt.Printf("   创建时间: %s\n", wf.CreatedAt)
		if wf.ApprovalTime != nil {
			fmt.Printf("   审批时间: %s\n", *wf.ApprovalTime)
		}
	}
	return nil
}

func printWorkflowDetail(ctx context.Context, store *storage.Store, id string) error {
	wf, err := store.GetWorkflow(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Printf("❌ 工作流 %s 不存在\n", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get workflow: %w", err)
	}

	out, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func updateTokenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "updatetoken <token>",
		Short: "Write the chat bot token into app config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return fmt.Errorf("BOT_TOKEN 不能为空")
			}

			store, err := openExistingStore(opts.dbPath())
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.SetConfig(ctx, config.KeyBotToken, token); err != nil {
				return fmt.Errorf("write bot token: %w", err)
			}
			saved, err := store.GetConfig(ctx, config.KeyBotToken, "")
			if err != nil {
				return fmt.Errorf("verify bot token: %w", err)
			}
			if saved != token {
				return fmt.Errorf("verify bot token: stored value does not match")
			}

			fmt.Println("✅ BOT_TOKEN 已更新到数据库")
			fmt.Printf("   Token 前10位: %s...\n", tokenPrefix(token))
			return nil
		},
	}
}

func tokenPrefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10]
}

func cleanupCmd(opts *options) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge workflows older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openExistingStore(opts.dbPath())
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PurgeExpired(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("purge expired workflows: %w", err)
			}
			fmt.Printf("✅ 已清理 %d 个过期工作流（保留 %d 天）\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", storage.RetentionDays, "Retention window in days")
	return cmd
}

func checkConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "checkconfig",
		Short: "Validate stored app config and project options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openExistingStore(opts.dbPath())
			if err != nil {
				return err
			}
			defer store.Close()
			return runCheckConfig(cmd.Context(), store)
		},
	}
}

func runCheckConfig(ctx context.Context, store *storage.Store) error {
	var problems int
	fail := func(format string, args ...any) {
		problems++
		fmt.Printf("❌ "+format+"\n", args...)
	}

	doc, err := store.GetProjectOptions(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail("项目配置不存在，请先运行 deploybot initdb")
	case err != nil:
		return fmt.Errorf("read project options: %w", err)
	default:
		projects, parseErr := config.ParseOptions(doc)
		if parseErr != nil {
			fail("项目配置无效: %v", parseErr)
			break
		}
		fmt.Printf("✅ 项目配置有效（%d 个项目）\n", len(projects.Projects))
		for _, name := range projects.ProjectNames() {
			p := projects.Projects[name]
			fmt.Printf("  - %s: %d 个环境, %d 个服务, %d 个群组\n",
				name, len(p.Environments), len(p.Services.All()), len(p.GroupIDs))
		}
		if err := projects.EnsureGroupIDs(); err != nil {
			fail("%v", err)
		}
	}

	cfg := config.NewApp(store)
	if cfg.BotToken(ctx) == "" {
		fail("BOT_TOKEN 未配置")
	} else {
		fmt.Println("✅ BOT_TOKEN 已配置")
	}

	if cfg.ApproverUsername(ctx) == "" && cfg.ApproverUserID(ctx) == 0 {
		fmt.Println("⚠️  未配置审批人，任何人都可以审批")
	} else {
		fmt.Println("✅ 审批人已配置")
	}

	ssoSettings := cfg.SSO(ctx)
	switch {
	case !ssoSettings.Enabled:
		fmt.Println("ℹ️  SSO 提交已禁用")
	case ssoSettings.Valid():
		fmt.Println("✅ SSO 配置完整")
	default:
		fail("SSO 已启用但配置不完整，需要 SSO_URL、SSO_AUTH_TOKEN 和 SSO_AUTHORIZATION")
	}

	if cfg.Jenkins(ctx).Enabled {
		fmt.Println("✅ Jenkins 全局配置已启用")
	} else {
		fmt.Println("ℹ️  Jenkins 全局配置未启用，项目级配置仍可覆盖")
	}

	if problems > 0 {
		return fmt.Errorf("发现 %d 个配置问题", problems)
	}
	fmt.Println("\n✅ 配置检查通过")
	return nil
}
