// tokengen 为运维人员签发访问 Token，服务本身不提供登录
//
//	go run ./cmd/tokengen -user ops-1 -role scheduler
//	go run ./cmd/tokengen -revoke <jti> -ttl 12h
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/config"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/jwt"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/redis"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径，缺省按 ./config/config.yaml 查找")
		userID     = flag.String("user", "", "Token 主体（操作人标识）")
		role       = flag.String("role", jwt.RoleViewer, "角色：admin / scheduler / viewer")
		ttl        = flag.Duration("ttl", 0, "有效期，缺省使用 auth.access_token_ttl")
		revoke     = flag.String("revoke", "", "吊销指定 jti（写入 Redis 黑名单）")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("加载配置失败: %v", err)
	}

	if *revoke != "" {
		revokeToken(cfg, *revoke, *ttl)
		return
	}

	if *userID == "" {
		fail("必须指定 -user")
	}
	if !jwt.IsValidRole(*role) {
		fail("未知角色 %q", *role)
	}

	auth := cfg.Auth
	if *ttl > 0 {
		auth.AccessTokenTTL = *ttl
	}
	token, err := jwt.NewManager(&auth).GenerateAccessToken(*userID, *role)
	if err != nil {
		fail("签发 Token 失败: %v", err)
	}
	fmt.Println(token)
}

func revokeToken(cfg *config.Config, jti string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cfg.Auth.AccessTokenTTL
	}
	rdb, err := redis.NewClient(&cfg.Redis, zap.NewNop())
	if err != nil {
		fail("%v", err)
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.BlacklistToken(ctx, jti, ttl); err != nil {
		fail("吊销失败: %v", err)
	}
	fmt.Printf("已吊销 %s（%s）\n", jti, ttl)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
