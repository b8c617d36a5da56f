// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/tidewater/services/chat/generation"
	"github.com/AleutianAI/tidewater/services/chat/handlers"
	"github.com/AleutianAI/tidewater/services/chat/middleware"
	"github.com/AleutianAI/tidewater/services/chat/store"
)

// SetupRoutes registers all chat service routes on the router.
func SetupRoutes(router *gin.Engine, db *store.DB, orch *generation.Orchestrator,
	tokens *middleware.TokenService) {

	router.GET("/", handlers.HandleRoot)
	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(db, tokens)
	chatHandler := handlers.NewChatHandler(db)
	messageHandler := handlers.NewMessageHandler(db)
	generateHandler := handlers.NewGenerateHandler(db, orch)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.HandleRegister)
			auth.POST("/login", authHandler.HandleLogin)
			auth.GET("/me", tokens.Middleware(), authHandler.HandleMe)
		}

		authed := v1.Group("", tokens.Middleware())
		{
			chats := authed.Group("/chats")
			{
				chats.POST("", chatHandler.HandleCreateChat)
				chats.GET("", chatHandler.HandleListChats)
				chats.GET("/:id", chatHandler.HandleGetChat)
				chats.PATCH("/:id", chatHandler.HandleUpdateChat)
				chats.DELETE("/:id", chatHandler.HandleDeleteChat)
			}

			messages := authed.Group("/messages")
			{
				messages.POST("", messageHandler.HandleCreateMessage)
				messages.GET("/chat/:chatId", messageHandler.HandleListMessages)
				messages.PATCH("/:id", messageHandler.HandleUpdateMessage)
				messages.POST("/generate", generateHandler.HandleGenerate)
			}
		}
	}
}
