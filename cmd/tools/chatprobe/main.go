package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/crisis-desk/backend/internal/config"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
	"github.com/zhouzirui/crisis-desk/backend/internal/service/ai"
	chatService "github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	list := flag.Bool("list", false, "只列出可用模型")
	modelID := flag.String("model", "", "指定模型 ID，留空使用默认模型")
	message := flag.String("message", "", "发送的文本消息")
	audioPath := flag.String("audio", "", "发送的音频文件路径（可与 -message 同时使用，作为说明文字）")
	personaID := flag.String("persona", "", "persona 预设 ID，留空使用默认预设")
	showPayload := flag.Bool("show-payload", false, "打印实际发往模型的首条消息")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	gateway, err := ai.NewGateway(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("模型网关初始化失败: %v", err)
	}

	discovery := ai.NewDiscovery(gateway, ai.DiscoveryConfig{
		Fallback:  cfg.AI.Fallback(),
		Preferred: cfg.AI.Model,
		Hint:      cfg.AI.ModelHint,
	})

	if *list {
		printCatalog(discovery.Discover(ctx))
		return
	}

	if strings.TrimSpace(*message) == "" && *audioPath == "" {
		flag.Usage()
		log.Fatal("请通过 -message 或 -audio 提供要发送的内容")
	}

	presets := persona.Seed()
	if cfg.Persona.File != "" {
		if presets, err = persona.LoadFile(cfg.Persona.File, presets); err != nil {
			log.Fatalf("persona 文件加载失败: %v", err)
		}
	}

	transcriber, err := ai.NewTranscriber(cfg.AI)
	if err != nil {
		log.Fatalf("转写服务初始化失败: %v", err)
	}

	injector := ai.NewInjector(cfg.Persona.Strategy)
	svc := chatService.NewService(chatService.Options{
		Personas:         persona.NewMemoryStore(presets),
		DefaultPersonaID: cfg.Persona.DefaultID,
		Injector:         injector,
		Gateway:          &tracingGateway{next: gateway, show: *showPayload},
		Transcriber:      transcriber,
		Discovery:        discovery,
	})

	session, err := svc.CreateSession(ctx, *personaID, *modelID)
	if err != nil {
		log.Fatalf("创建会话失败: %v", err)
	}
	log.Printf("开始探测: persona=%s model=%s catalog=%s strategy=%s", session.PersonaID, session.Model, session.Catalog.Source, injector.Strategy())

	var outcome chat.Outcome
	if *audioPath != "" {
		data, readErr := os.ReadFile(*audioPath)
		if readErr != nil {
			log.Fatalf("读取音频文件失败: %v", readErr)
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(*audioPath)), ".")
		outcome, err = svc.SubmitAudio(ctx, session.ID, data, "audio/"+ext, *message)
	} else {
		outcome, err = svc.SubmitText(ctx, session.ID, *message)
	}
	if err != nil {
		log.Fatalf("提交失败: %v", err)
	}

	if outcome.State == chat.StateRenderedError {
		fmt.Fprintln(os.Stderr, outcome.Error)
		os.Exit(1)
	}
	fmt.Println(outcome.Reply.DisplayText)
}

func printCatalog(catalog chat.ModelCatalog) {
	if catalog.Error != "" {
		log.Printf("模型列表获取失败，使用兜底列表: %s", catalog.Error)
	}
	for _, id := range catalog.Models {
		marker := " "
		if id == catalog.DefaultModel {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, id)
	}
	log.Printf("source=%s default=%s", catalog.Source, catalog.DefaultModel)
}

// tracingGateway 可选地打印发往模型的内容
type tracingGateway struct {
	next ai.Gateway
	show bool
}

func (p *tracingGateway) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	return p.next.ListModels(ctx)
}

func (p *tracingGateway) Send(ctx context.Context, modelID string, payload ai.Payload) (string, error) {
	if p.show {
		if payload.System != "" {
			log.Printf("system: %s", payload.System)
		}
		for i, msg := range payload.Messages {
			log.Printf("[%d] %s: %s", i, msg.Role, msg.Text())
		}
	}
	return p.next.Send(ctx, modelID, payload)
}
